package binstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/migadu/svbin/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS programs (
	key TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	stored_at TIMESTAMP NOT NULL
);
`

// SQLiteStore keeps programs in a local SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string, timeout time.Duration) (*SQLiteStore, error) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return nil, fmt.Errorf("sqlite store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program store: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		logger.Warn("Failed to enable WAL for program store", "path", path, "error", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create program store schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("program store ping failed: %w", err)
	}
	return &SQLiteStore{db: db, timeout: timeout}, nil
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (data []byte, err error) {
	defer func(start time.Time) { observe("get", "sqlite", start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.db.QueryRowContext(ctx, `SELECT data FROM programs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read program %s: %w", key, classifySQLiteError(err))
	}
	return data, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte) (err error) {
	defer func(start time.Time) { observe("put", "sqlite", start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO programs (key, data, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at`,
		key, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store program %s: %w", key, classifySQLiteError(err))
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe("delete", "sqlite", start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err = s.db.ExecContext(ctx, `DELETE FROM programs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete program %s: %w", key, classifySQLiteError(err))
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// classifySQLiteError marks lock contention as transient.
func classifySQLiteError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return fmt.Errorf("%w: %w", errTransient, err)
	}
	return err
}
