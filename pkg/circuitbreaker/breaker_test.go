package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func tripAfter(n uint32) func(Counts) bool {
	return func(counts Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test-recover",
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: tripAfter(3),
	})

	if cb.State() != StateClosed {
		t.Errorf("Expected initial state to be CLOSED, got %v", cb.State())
	}

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("Expected the request error, got %v", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected state to be OPEN after failures, got %v", cb.State())
	}

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
	if called {
		t.Error("Request must not run while the breaker is open")
	}

	time.Sleep(40 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected state to be HALF_OPEN after the timeout, got %v", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Expected trial request to succeed, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to be CLOSED after a successful trial, got %v", cb.State())
	}
}

func TestForceHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test-force-halfopen",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: tripAfter(1),
	})

	_ = cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN, got %v", cb.State())
	}

	cb.ForceHalfOpen()
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected HALF_OPEN after ForceHalfOpen, got %v", cb.State())
	}

	// A failed trial reopens the breaker.
	_ = cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after a failed trial, got %v", cb.State())
	}
}

func TestHalfOpenLimitsRequests(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: tripAfter(1),
	})
	_ = cb.Execute(func() error { return errTest })
	cb.ForceHalfOpen()

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error {
			<-release
			return nil
		})
	}()

	// Wait for the trial request to be admitted.
	for i := 0; i < 100 && cb.Counts().Requests == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("Expected ErrTooManyRequests, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("Expected trial request to succeed, got %v", err)
	}
}

func TestStateChangeCallback(t *testing.T) {
	var changes []string
	cb := NewCircuitBreaker(Settings{
		Name:        "callback",
		ReadyToTrip: tripAfter(1),
		OnStateChange: func(name string, from, to State) {
			changes = append(changes, name+":"+from.String()+"->"+to.String())
		},
	})
	_ = cb.Execute(func() error { return errTest })

	if len(changes) != 1 || changes[0] != "callback:CLOSED->OPEN" {
		t.Errorf("Unexpected state changes: %v", changes)
	}
}

func TestIsSuccessful(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker(Settings{
		ReadyToTrip: tripAfter(1),
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, notFound)
		},
	})

	_ = cb.Execute(func() error { return notFound })
	if cb.State() != StateClosed {
		t.Errorf("Expected errors counted as success to keep the breaker CLOSED, got %v", cb.State())
	}
}
