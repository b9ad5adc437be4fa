package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known sync_state keys.
const (
	StateDeviceID   = "device_id"
	StateLastSyncAt = "last_sync_at"
	StateLastError  = "last_error"
)

// SetState upserts a sync_state value.
func (db *DB) SetState(ctx context.Context, key, value string) error {
	conn, err := db.sqlDB()
	if err != nil {
		return err
	}
	return setState(ctx, conn, key, value, db.stamp())
}

// GetState returns a sync_state value and whether it exists.
func (db *DB) GetState(ctx context.Context, key string) (string, bool, error) {
	conn, err := db.sqlDB()
	if err != nil {
		return "", false, err
	}
	return getState(ctx, conn, key)
}

// LastSyncAt returns the completion time of the last successful sync cycle,
// or the zero time when none has completed yet.
func (db *DB) LastSyncAt(ctx context.Context) (time.Time, error) {
	v, ok, err := db.GetState(ctx, StateLastSyncAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", StateLastSyncAt, err)
	}
	return t, nil
}

// SetLastSyncAt records the completion time of a sync cycle.
func (db *DB) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return db.SetState(ctx, StateLastSyncAt, t.UTC().Format(time.RFC3339Nano))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setState(ctx context.Context, e execer, key, value string, now time.Time) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(now))
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

func getState(ctx context.Context, q queryer, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// ensureDeviceID loads the persisted device id, generating one on first use.
func ensureDeviceID(ctx context.Context, conn *sql.DB, now time.Time) (string, error) {
	id, ok, err := getState(ctx, conn, StateDeviceID)
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := setState(ctx, conn, StateDeviceID, id, now); err != nil {
		return "", err
	}
	return id, nil
}
