// Package binstore persists compiled programs so that scripts are not
// recompiled on every start. Programs are stored in their file encoding,
// keyed by a hash of the script source and compile options.
package binstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/migadu/svbin/config"
	"github.com/migadu/svbin/pkg/metrics"
)

// ErrNotFound is returned by Get when no program is stored under a key.
var ErrNotFound = errors.New("program not found")

// Store is a persistent map from keys to encoded programs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key, replacing what was there.
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the store selected by cfg, wrapped in a ResilientStore. It
// returns a nil Store when no driver is configured.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	timeout, err := cfg.GetQueryTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid store query timeout: %w", err)
	}
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Path, timeout)
		if err != nil {
			return nil, err
		}
		return NewResilientStore(s, "sqlite-store"), nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.DSN, timeout)
		if err != nil {
			return nil, err
		}
		return NewResilientStore(s, "postgres-store"), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// observe records the outcome of one store operation.
func observe(operation, driver string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "failure"
	}
	metrics.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreOperationDuration.WithLabelValues(operation, driver).Observe(time.Since(start).Seconds())
}
