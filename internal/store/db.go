package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB is the device-local document store and sync queue. It is safe for
// concurrent use once Init has returned.
type DB struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	initMu sync.Mutex
	ready  atomic.Bool
	conn   *sql.DB

	deviceID    string
	collectorID string
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithClock overrides the time source. Tests use it to make timestamps deterministic.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// WithDeviceID sets the device attribution stamped on new records. When empty,
// Init loads or generates a persistent device id.
func WithDeviceID(id string) Option {
	return func(db *DB) { db.deviceID = id }
}

// WithCollectorID sets the default collector attribution for new records.
func WithCollectorID(id string) Option {
	return func(db *DB) { db.collectorID = id }
}

// New returns an uninitialised store for the SQLite file at path. No I/O
// happens until Init.
func New(path string, opts ...Option) *DB {
	db := &DB{
		path:   path,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(db)
	}
	return db
}

// Open is New followed by Init.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	db := New(path, opts...)
	if err := db.Init(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Init opens the SQLite file with WAL mode and immediate write transactions,
// applies pending migrations and resolves the device identity. It is
// idempotent: concurrent callers block until the first finishes and later
// calls return immediately.
func (db *DB) Init(ctx context.Context) error {
	if db.ready.Load() {
		return nil
	}
	db.initMu.Lock()
	defer db.initMu.Unlock()
	if db.ready.Load() {
		return nil
	}

	conn, err := sql.Open("sqlite3", db.path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("ping db: %w", err)
	}

	result, err := migrateConn(conn, db.logger)
	if err != nil {
		_ = conn.Close()
		return err
	}
	db.logger.Info("store migrated",
		zap.String("path", db.path),
		zap.Uint("from", result.From),
		zap.Uint("version", result.Version),
		zap.Bool("changed", result.Changed))

	if db.deviceID == "" {
		id, err := ensureDeviceID(ctx, conn, db.now())
		if err != nil {
			_ = conn.Close()
			return err
		}
		db.deviceID = id
	}

	db.conn = conn
	db.ready.Store(true)
	return nil
}

// Close releases the underlying connection. The store cannot be reused.
func (db *DB) Close() error {
	db.initMu.Lock()
	defer db.initMu.Unlock()
	if !db.ready.Load() {
		return nil
	}
	db.ready.Store(false)
	return db.conn.Close()
}

// DeviceID returns the device attribution stamped on new records.
func (db *DB) DeviceID() string {
	return db.deviceID
}

// CollectorID returns the default collector attribution.
func (db *DB) CollectorID() string {
	return db.collectorID
}

func (db *DB) sqlDB() (*sql.DB, error) {
	if !db.ready.Load() {
		return nil, ErrNotInitialized
	}
	return db.conn, nil
}

// stamp returns the current time truncated to the millisecond precision
// that the store persists.
func (db *DB) stamp() time.Time {
	return db.now().UTC().Truncate(time.Millisecond)
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
