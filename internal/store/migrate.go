package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/fieldsync/internal/store/migrations"
	"go.uber.org/zap"
)

// MigrateResult describes the schema after a migration run.
type MigrateResult struct {
	From    uint
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies pending schema migrations to an initialised store.
func (db *DB) Migrate() (*MigrateResult, error) {
	conn, err := db.sqlDB()
	if err != nil {
		return nil, err
	}
	return migrateConn(conn, db.logger)
}

// migrateLogger routes golang-migrate's progress lines to zap at debug.
type migrateLogger struct{ l *zap.SugaredLogger }

func (m migrateLogger) Printf(format string, v ...any) { m.l.Debugf(format, v...) }
func (m migrateLogger) Verbose() bool                  { return false }

func migrateConn(conn *sql.DB, logger *zap.Logger) (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(conn, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	m.Log = migrateLogger{logger.Named("migrate").Sugar()}

	res := &MigrateResult{}
	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return nil, fmt.Errorf("schema version: %w", err)
	case dirty:
		// A dirty schema means an earlier run died half way; the data must
		// be inspected by hand before forcing a version.
		return nil, fmt.Errorf("schema version %d is dirty", from)
	default:
		res.From = from
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	res.Version, res.Dirty, err = m.Version()
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	res.Changed = res.Version != res.From
	return res, nil
}
