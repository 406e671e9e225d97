package binstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS svbin_programs (
	key TEXT PRIMARY KEY,
	data BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore keeps programs in a PostgreSQL table shared by every
// delivery node.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore connects to dsn and creates the table if needed.
func NewPostgresStore(ctx context.Context, dsn string, timeout time.Duration) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create program store schema: %w", err)
	}
	return &PostgresStore{pool: pool, timeout: timeout}, nil
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *PostgresStore) Get(ctx context.Context, key string) (data []byte, err error) {
	defer func(start time.Time) { observe("get", "postgres", start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.pool.QueryRow(ctx, `SELECT data FROM svbin_programs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read program %s: %w", key, err)
	}
	return data, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, data []byte) (err error) {
	defer func(start time.Time) { observe("put", "postgres", start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO svbin_programs (key, data, stored_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, stored_at = now()`,
		key, data)
	if err != nil {
		return fmt.Errorf("failed to store program %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe("delete", "postgres", start, err) }(time.Now())
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err = s.pool.Exec(ctx, `DELETE FROM svbin_programs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete program %s: %w", key, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
