package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// SQLite is a Store backed by a single-table sqlite database.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens the database at dsn and ensures the schema exists.
func OpenSQLite(dsn string, busyTimeout time.Duration) (*SQLite, error) {
	if dsn == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Tuning only; the store works without them.
	for _, pragma := range pragmas(busyTimeout) {
		if _, err := db.Exec(pragma); err != nil {
			slog.Warn("Failed to apply sqlite pragma", "pragma", pragma, "error", err)
		}
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{conn: db}, nil
}

func pragmas(busyTimeout time.Duration) []string {
	out := []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}
	if busyTimeout > 0 {
		out = append(out, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	return out
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Get retrieves the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or replaces the value stored under key.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}
