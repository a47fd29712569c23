// Package store provides the sqlite-backed document store used for the
// command audit trail and the last remembered sort preference — the
// persistent document-store collaborator spec.md treats as an external
// input. It uses the pure-Go modernc.org/sqlite driver so the binary never
// needs cgo.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schemas/*.sql
var schemaFiles embed.FS

// DB wraps the sqlite connection with the PRAGMA profile and schema
// migration the store needs.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates the data directory if needed, opens the database with a
// balanced PRAGMA profile, and applies the schema. Migration is idempotent.
func Open(path string) (*DB, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path to absolute: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	connStr := buildConnectionString(absPath)
	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(24 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping store database: %w", err)
	}

	db := &DB{conn: conn, path: absPath}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate store database: %w", err)
	}
	return db, nil
}

// buildConnectionString applies a balanced PRAGMA profile: WAL journaling,
// NORMAL synchronous (fsync at checkpoints), and a short busy timeout so a
// concurrent writer never blocks an admin request for long.
func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=cache_size(-16000)"
	return connStr
}

func (db *DB) migrate() error {
	content, err := schemaFiles.ReadFile("schemas/store_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}
	if _, err := db.conn.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the underlying *sql.DB for callers that need raw access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the absolute database file path.
func (db *DB) Path() string {
	return db.path
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic and committing otherwise.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
