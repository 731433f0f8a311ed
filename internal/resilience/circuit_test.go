package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errLogin = errors.New("login rejected")

func failing(_ context.Context) error { return errLogin }
func passing(_ context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	_ = cb.Execute(context.Background(), failing)
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after 1 failure, got %s", cb.State())
	}
	_ = cb.Execute(context.Background(), failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 2 failures, got %s", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not run while open")
	}
	if cb.RetryAfter() <= 0 {
		t.Error("expected positive RetryAfter while open")
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(2 * time.Minute)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}
	if err := cb.Execute(context.Background(), passing); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failing)
	now = now.Add(2 * time.Minute)
	_ = cb.Execute(context.Background(), failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected reopened circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_ShouldTripFilters(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return errors.Is(err, errLogin) },
	})
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("timeout") })
	if cb.State() != CircuitClosed {
		t.Fatalf("non-tripping error opened circuit")
	}
	if cb.Failures() != 0 {
		t.Errorf("expected 0 failures, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_ResetAndStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	_ = cb.Execute(context.Background(), failing)
	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after reset")
	}
	if len(transitions) != 2 || transitions[0] != "closed->open" || transitions[1] != "open->closed" {
		t.Errorf("unexpected transitions: %v", transitions)
	}
}

func TestNewCircuitConfig(t *testing.T) {
	cfg := NewCircuitConfig(0, 0)
	if cfg.FailureThreshold != 3 || cfg.ResetTimeout != 15*time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	cfg = NewCircuitConfig(5, 2)
	if cfg.FailureThreshold != 5 || cfg.ResetTimeout != 2*time.Minute {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
