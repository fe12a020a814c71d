// Package database opens and migrates the SQLite store used for cached
// calculation results.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection pool.
type DB struct {
	*sql.DB
}

// Open connects to the SQLite database at path with WAL journaling and
// foreign keys enabled.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calc_cache (
		category   TEXT    NOT NULL,
		key        TEXT    NOT NULL,
		value      BLOB    NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (category, key)
	);
	CREATE INDEX IF NOT EXISTS idx_calc_cache_expires ON calc_cache(expires_at);
	`
	if _, err := d.Exec(schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
