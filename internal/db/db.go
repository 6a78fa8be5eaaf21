// Package db wraps the optional Postgres connection backing the tracker's
// best-effort audit sink (see internal/tracker/audit.go).
package db

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

// DB wraps the database connection pool.
type DB struct {
	*sql.DB
}

// Connect opens a Postgres connection pool and verifies it with a ping.
// maxOpenConns/maxIdleConns come from the caller's config (see
// Config.DBMaxOpenConns/DBMaxIdleConns); non-positive values fall back to
// the same defaults the config layer applies.
func Connect(connStr string, maxOpenConns, maxIdleConns int) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)

	log.Println("[db] connected to audit database")
	return &DB{sqlDB}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
