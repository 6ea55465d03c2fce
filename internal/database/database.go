// Package database provides the relational store for go-pugbin: group
// watermarks, parts, segments and blacklist rules on SQLite or PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"github.com/go-while/go-pugbin/internal/config"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Database wraps the connection and a dialect-aware query builder.
type Database struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

// Open connects to the configured database. Migrations are not applied.
func Open(cfg config.DatabaseConfig) (*Database, error) {
	var dsn string
	switch cfg.Driver {
	case DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn = sqliteDSN(cfg.DSN)
	case DriverPostgres:
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	d := &Database{db: db, driver: cfg.Driver}
	switch cfg.Driver {
	case DriverSQLite:
		// one writer: part sessions hold the connection for the whole batch
		db.SetMaxOpenConns(1)
		d.sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	case DriverPostgres:
		db.SetMaxOpenConns(32)
		db.SetMaxIdleConns(8)
		db.SetConnMaxIdleTime(5 * time.Minute)
		d.sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}
	log.Printf("[DB] opened %s database", cfg.Driver)
	return d, nil
}

// sqliteDSN adds the pragmas the store relies on unless already present.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate"
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}
