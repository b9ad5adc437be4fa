package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const queueColumns = `id, seq, object_store, record_id, operation, payload, sync_status,
	retry_count, error_message, created_at, next_attempt_at, synced_at`

// enqueue appends a pending mutation inside the caller's transaction.
func enqueue(ctx context.Context, tx *sql.Tx, collection, recordID string, op Operation, payload []byte, now time.Time) (*QueueItem, error) {
	item := &QueueItem{
		ID:          uuid.NewString(),
		ObjectStore: collection,
		RecordID:    recordID,
		Operation:   op,
		Payload:     payload,
		SyncStatus:  StatusPending,
		CreatedAt:   now,
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (id, object_store, record_id, operation, payload, sync_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ObjectStore, item.RecordID, item.Operation, string(payload), item.SyncStatus, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("enqueue %s %s/%s: %w", op, collection, recordID, err)
	}
	item.Seq, _ = res.LastInsertId()
	return item, nil
}

// QueueItems returns queue items matching the filter in insertion order.
// created_at is informational only; wall-clock stamps can tie or step
// backwards, seq cannot.
func (db *DB) QueueItems(ctx context.Context, f QueueFilter) ([]QueueItem, error) {
	conn, err := db.sqlDB()
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + queueColumns + ` FROM sync_queue WHERE 1 = 1`
	var args []any
	if len(f.Statuses) > 0 {
		q += ` AND sync_status IN (?` + strings.Repeat(`, ?`, len(f.Statuses)-1) + `)`
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.Collection != "" {
		q += ` AND object_store = ?`
		args = append(args, f.Collection)
	}
	if f.RecordID != "" {
		q += ` AND record_id = ?`
		args = append(args, f.RecordID)
	}
	q += ` ORDER BY seq ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// PendingQueue returns the items a drain must consider: every pending item
// plus error items, which still block later mutations of their record.
func (db *DB) PendingQueue(ctx context.Context) ([]QueueItem, error) {
	return db.QueueItems(ctx, QueueFilter{Statuses: []SyncStatus{StatusPending, StatusError}})
}

// QueueItem returns one queue item, or nil when it does not exist.
func (db *DB) QueueItem(ctx context.Context, id string) (*QueueItem, error) {
	conn, err := db.sqlDB()
	if err != nil {
		return nil, err
	}
	item, err := scanQueueItem(conn.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// MarkItemSynced moves a pending item to synced. When the record has no
// other unsynced items left, the record itself is marked synced as well.
func (db *DB) MarkItemSynced(ctx context.Context, id string) error {
	conn, err := db.sqlDB()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var collection, recordID string
	err = tx.QueryRowContext(ctx, `SELECT object_store, record_id FROM sync_queue WHERE id = ?`, id).
		Scan(&collection, &recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("queue item %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sync_queue SET sync_status = 'synced', error_message = '', synced_at = ?
		WHERE id = ? AND sync_status = 'pending'`, toMillis(db.stamp()), id); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE records SET sync_status = 'synced'
		WHERE collection = ? AND id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM sync_queue
			WHERE object_store = ? AND record_id = ? AND sync_status IN ('pending', 'error')
		  )`, collection, recordID, collection, recordID); err != nil {
		return fmt.Errorf("mark record synced: %w", err)
	}

	return tx.Commit()
}

// MarkItemFailed records a failed replay attempt. The retry count grows by
// one; once it exceeds maxRetries the item becomes error and stops being
// retried, and its record is marked error. The resulting item is returned.
func (db *DB) MarkItemFailed(ctx context.Context, id, reason string, maxRetries int, nextAttempt time.Time) (*QueueItem, error) {
	conn, err := db.sqlDB()
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE sync_queue SET
			retry_count = retry_count + 1,
			error_message = ?,
			next_attempt_at = ?,
			sync_status = CASE WHEN retry_count + 1 > ? THEN 'error' ELSE 'pending' END
		WHERE id = ? AND sync_status = 'pending'`,
		reason, toMillis(nextAttempt), maxRetries, id)
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("queue item %s is not pending", id)
	}

	item, err := scanQueueItem(tx.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if item.SyncStatus == StatusError {
		if _, err := tx.ExecContext(ctx, `
			UPDATE records SET sync_status = 'error' WHERE collection = ? AND id = ?`,
			item.ObjectStore, item.RecordID); err != nil {
			return nil, fmt.Errorf("mark record error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return item, nil
}

// QueueCounts aggregates the queue by status with a single grouped query.
func (db *DB) QueueCounts(ctx context.Context) (QueueCounts, error) {
	var c QueueCounts
	conn, err := db.sqlDB()
	if err != nil {
		return c, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM sync_queue GROUP BY sync_status`)
	if err != nil {
		return c, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			status SyncStatus
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return c, err
		}
		switch status {
		case StatusPending:
			c.Pending = n
		case StatusSynced:
			c.Synced = n
		case StatusError:
			c.Failed = n
		}
	}
	c.Total = c.Pending + c.Synced + c.Failed
	return c, rows.Err()
}

// ClearSyncedItems deletes every synced item and returns how many were
// removed. Pending and error items are never touched.
func (db *DB) ClearSyncedItems(ctx context.Context) (int64, error) {
	conn, err := db.sqlDB()
	if err != nil {
		return 0, err
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM sync_queue WHERE sync_status = 'synced'`)
	if err != nil {
		return 0, fmt.Errorf("clear synced: %w", err)
	}
	return res.RowsAffected()
}

// RequeueFailed moves error items back to pending with a fresh retry budget.
// With no ids every error item is requeued. Records whose items are pending
// again return to pending.
func (db *DB) RequeueFailed(ctx context.Context, ids ...string) (int64, error) {
	conn, err := db.sqlDB()
	if err != nil {
		return 0, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := `UPDATE sync_queue SET sync_status = 'pending', retry_count = 0, error_message = '', next_attempt_at = 0
		WHERE sync_status = 'error'`
	var args []any
	if len(ids) > 0 {
		q += ` AND id IN (?` + strings.Repeat(`, ?`, len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE records SET sync_status = 'pending'
		WHERE sync_status = 'error'
		  AND NOT EXISTS (
			SELECT 1 FROM sync_queue q
			WHERE q.object_store = records.collection AND q.record_id = records.id AND q.sync_status = 'error'
		  )`); err != nil {
		return 0, fmt.Errorf("requeue records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func scanQueueItem(s scanner) (*QueueItem, error) {
	var (
		item                        QueueItem
		payload                     string
		createdAt, nextAt, syncedAt int64
	)
	if err := s.Scan(&item.ID, &item.Seq, &item.ObjectStore, &item.RecordID, &item.Operation, &payload,
		&item.SyncStatus, &item.RetryCount, &item.ErrorMessage, &createdAt, &nextAt, &syncedAt); err != nil {
		return nil, err
	}
	if payload != "" {
		item.Payload = []byte(payload)
	}
	item.CreatedAt = fromMillis(createdAt)
	item.NextAttemptAt = fromMillis(nextAt)
	item.SyncedAt = fromMillis(syncedAt)
	return &item, nil
}
