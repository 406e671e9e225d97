package binstore

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/migadu/svbin/pkg/circuitbreaker"
	"github.com/migadu/svbin/pkg/retry"
)

// ResilientStore retries transient failures of a Store and stops calling it
// while it keeps failing. Callers see circuitbreaker.ErrCircuitBreakerOpen
// right away and can compile instead of waiting for the store.
type ResilientStore struct {
	store   Store
	breaker *circuitbreaker.CircuitBreaker
	backoff retry.BackoffConfig
}

// NewResilientStore wraps s.
func NewResilientStore(s Store, name string) *ResilientStore {
	settings := circuitbreaker.DefaultSettings(name)
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNotFound)
	}
	return &ResilientStore{
		store:   s,
		breaker: circuitbreaker.NewCircuitBreaker(settings),
		backoff: retry.DefaultBackoffConfig(),
	}
}

// Breaker returns the circuit breaker guarding the store.
func (r *ResilientStore) Breaker() *circuitbreaker.CircuitBreaker {
	return r.breaker
}

func (r *ResilientStore) do(ctx context.Context, fn func() error) error {
	return retry.WithRetry(ctx, func() error {
		err := r.breaker.Execute(fn)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return retry.Stop(err)
		}
		return err
	}, r.backoff)
}

func (r *ResilientStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, func() error {
		var err error
		data, err = r.store.Get(ctx, key)
		return err
	})
	return data, err
}

func (r *ResilientStore) Put(ctx context.Context, key string, data []byte) error {
	return r.do(ctx, func() error {
		return r.store.Put(ctx, key, data)
	})
}

func (r *ResilientStore) Delete(ctx context.Context, key string) error {
	return r.do(ctx, func() error {
		return r.store.Delete(ctx, key)
	})
}

func (r *ResilientStore) Close() error {
	return r.store.Close()
}

// isRetryableError reports transient failures: connection problems and
// PostgreSQL errors that a second attempt may not hit.
func isRetryableError(err error) bool {
	if err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// Class 40: transaction rollback, 53300: too many connections,
		// class 08: connection exception
		case "40001", "40P01", "53300",
			"08000", "08001", "08003", "08004", "08006", "08007", "08P01":
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, errTransient)
}

// errTransient marks store errors that are worth retrying, such as a
// busy SQLite database.
var errTransient = errors.New("transient store error")
