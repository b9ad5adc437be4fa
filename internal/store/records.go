package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const recordColumns = `id, version, sync_status, device_id, collector_id, body, created_at, updated_at`

// Create persists a new record and enqueues its create mutation in the same
// transaction. The id is generated when empty; version, status, timestamps
// and attribution are assigned by the store.
func (db *DB) Create(ctx context.Context, collection string, doc *Document) (*Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	conn, err := db.sqlDB()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = &Document{}
	}

	now := db.stamp()
	out := doc.Clone()
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	for k := range systemFields {
		delete(out.Fields, k)
	}
	if out.ID == "" {
		out.ID = NewRecordID(now)
	}
	out.Version = 1
	out.SyncStatus = StatusPending
	out.CreatedAt = now
	out.UpdatedAt = now
	if out.DeviceID == "" {
		out.DeviceID = db.deviceID
	}
	if out.CollectorID == "" {
		out.CollectorID = db.collectorID
	}

	body, err := encodeFields(out.Fields)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (collection, `+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		collection, out.ID, out.Version, out.SyncStatus, out.DeviceID, out.CollectorID, body,
		toMillis(out.CreatedAt), toMillis(out.UpdatedAt)); err != nil {
		if isUniqueViolation(err) {
			return nil, &DuplicateRecordError{Collection: collection, ID: out.ID}
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}

	if _, err := enqueue(ctx, tx, collection, out.ID, OpCreate, payload, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// Update shallow-merges partial into the stored domain fields, bumps the
// version and enqueues an update mutation carrying the full merged record.
// System fields present in partial are ignored.
func (db *DB) Update(ctx context.Context, collection, id string, partial map[string]any) (*Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	conn, err := db.sqlDB()
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getRecord(ctx, tx, collection, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &NotFoundError{Collection: collection, ID: id}
	}

	out := current.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		if IsSystemField(k) {
			continue
		}
		out.Fields[k] = v
	}
	out.Version = current.Version + 1
	out.SyncStatus = StatusPending
	now := db.stamp()
	if !now.After(current.UpdatedAt) {
		now = current.UpdatedAt.Add(time.Millisecond)
	}
	out.UpdatedAt = now

	body, err := encodeFields(out.Fields)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE records SET version = ?, sync_status = ?, body = ?, updated_at = ?
		WHERE collection = ? AND id = ?`,
		out.Version, out.SyncStatus, body, toMillis(out.UpdatedAt), collection, id); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	if _, err := enqueue(ctx, tx, collection, id, OpUpdate, payload, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// Delete removes a record and enqueues a delete mutation. Earlier pending
// mutations for the record stay queued and replay first.
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	conn, err := db.sqlDB()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Collection: collection, ID: id}
	}

	if _, err := enqueue(ctx, tx, collection, id, OpDelete, nil, db.stamp()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID returns the record, or nil without error when it does not exist.
func (db *DB) GetByID(ctx context.Context, collection, id string) (*Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	conn, err := db.sqlDB()
	if err != nil {
		return nil, err
	}
	return getRecord(ctx, conn, collection, id)
}

// GetAll returns every record of the collection in insertion order.
func (db *DB) GetAll(ctx context.Context, collection string) ([]*Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	conn, err := db.sqlDB()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE collection = ? ORDER BY seq ASC`, collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// RecordCount returns the number of records in the collection.
func (db *DB) RecordCount(ctx context.Context, collection string) (int64, error) {
	if err := ValidateCollection(collection); err != nil {
		return 0, err
	}
	conn, err := db.sqlDB()
	if err != nil {
		return 0, err
	}
	var count int64
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&count)
	return count, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getRecord(ctx context.Context, q queryer, collection, id string) (*Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE collection = ? AND id = ?`, collection, id)
	doc, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func scanRecord(s scanner) (*Document, error) {
	var (
		doc                  Document
		body                 string
		createdAt, updatedAt int64
	)
	if err := s.Scan(&doc.ID, &doc.Version, &doc.SyncStatus, &doc.DeviceID, &doc.CollectorID,
		&body, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.CreatedAt = fromMillis(createdAt)
	doc.UpdatedAt = fromMillis(updatedAt)
	if body != "" {
		fields, err := decodeFields([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("decode body of %s: %w", doc.ID, err)
		}
		doc.Fields = fields
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	return &doc, nil
}

func encodeFields(fields map[string]any) (string, error) {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if !IsSystemField(k) {
			clean[k] = v
		}
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("encode body: %w", err)
	}
	return string(b), nil
}
