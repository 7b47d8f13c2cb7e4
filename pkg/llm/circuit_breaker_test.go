package llm

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestBreaker(threshold int) (*CircuitBreaker, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:  threshold,
		ResetAfter: 30 * time.Second,
		Clock:      clock,
	}), clock
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5)

	if cb.State() != CircuitClosed {
		t.Errorf("expected initial state to be CircuitClosed, got %v", cb.State())
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected initial consecutive failures to be 0, got %d", cb.ConsecutiveFailures())
	}

	allowed, err := cb.Allow()
	if !allowed || err != nil {
		t.Errorf("expected closed circuit to allow, got allowed=%v err=%v", allowed, err)
	}
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected state to be CircuitOpen after 3 failures, got %v", cb.State())
	}

	allowed, err := cb.Allow()
	if allowed {
		t.Errorf("expected Allow() to return false for open circuit")
	}
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Fatalf("expected circuit breaker open error, got: %v", err)
	}
	var llmErr *Error
	if !errors.As(err, &llmErr) || llmErr.Type != ErrorTypeCircuitOpen || llmErr.Retryable {
		t.Errorf("expected non-retryable circuit_open error, got %#v", err)
	}
}

func TestCircuitBreaker_DoesNotTripBeforeThreshold(t *testing.T) {
	cb, _ := newTestBreaker(5)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitClosed {
		t.Errorf("expected CircuitClosed below threshold, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterReset(t *testing.T) {
	cb, clock := newTestBreaker(1)
	cb.RecordFailure()

	clock.Advance(29 * time.Second)
	if allowed, _ := cb.Allow(); allowed {
		t.Fatal("expected open circuit before reset period elapses")
	}

	clock.Advance(2 * time.Second)
	allowed, err := cb.Allow()
	if !allowed || err != nil {
		t.Fatalf("expected probe request after reset period, got allowed=%v err=%v", allowed, err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected CircuitHalfOpen, got %v", cb.State())
	}

	// Only one probe at a time.
	if allowed, _ := cb.Allow(); allowed {
		t.Error("expected half-open circuit to reject concurrent requests")
	}
}

func TestCircuitBreaker_HalfOpenProbeOutcome(t *testing.T) {
	cb, clock := newTestBreaker(1)
	cb.RecordFailure()
	clock.Advance(31 * time.Second)
	cb.Allow()

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Errorf("expected failed probe to reopen circuit, got %v", cb.State())
	}

	clock.Advance(31 * time.Second)
	cb.Allow()
	cb.RecordSuccess()
	if cb.State() != CircuitClosed || cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected successful probe to close circuit, got %v with %d failures", cb.State(), cb.ConsecutiveFailures())
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Errorf("expected CircuitClosed, got %v", cb.State())
	}
	if cb.ConsecutiveFailures() != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", cb.ConsecutiveFailures())
	}
}

func TestCircuitState_String(t *testing.T) {
	for state, want := range map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
