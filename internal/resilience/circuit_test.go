package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

func failCall(_ context.Context) error { return errors.New("provider down") }
func okCall(_ context.Context) error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), failCall); err == nil {
			t.Fatal("expected call error")
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 3 failures, got %v", cb.State())
	}

	err := cb.Execute(context.Background(), okCall)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), failCall)
	}
	if err := cb.Execute(context.Background(), okCall); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Two more failures should not reach the threshold of three.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), failCall)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	cb, now := testBreaker(1, 30*time.Second)

	_ = cb.Execute(context.Background(), failCall)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	*now = now.Add(31 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %v", cb.State())
	}

	if err := cb.Execute(context.Background(), okCall); err != nil {
		t.Fatalf("probe should be admitted: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after successful probe, got %v", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, now := testBreaker(1, 30*time.Second)

	_ = cb.Execute(context.Background(), failCall)
	*now = now.Add(31 * time.Second)

	if err := cb.Execute(context.Background(), failCall); err == nil {
		t.Fatal("expected call error from probe")
	}
	// The clock has not advanced past the new failure, so the circuit
	// rejects again.
	err := cb.Execute(context.Background(), okCall)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after failed probe, got %v", err)
	}
}

func TestCircuitBreaker_DefaultsFillUnsetFields(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	if cb.cfg.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.cfg.FailureThreshold)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMaxProbes != 1 {
		t.Errorf("HalfOpenMaxProbes = %d, want 1", cb.cfg.HalfOpenMaxProbes)
	}
}
