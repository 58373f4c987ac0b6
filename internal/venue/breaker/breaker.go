// Package breaker wraps a venue client operation with exponential-backoff
// retry and a per-client circuit breaker, so venue-facing code never has to
// reimplement either concern.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/endgamesweep/scanner/internal/config"
	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/venue"
)

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Wrapper retries a transient failure up to cfg.MaxAttempts times with
// jittered exponential backoff, and trips a circuit breaker after
// cfg.FailureThreshold consecutive failures. While open, calls fail fast
// with domain.ErrCircuitOpen until cfg.CooldownPeriod elapses, at which
// point a single probe call is let through in half-open state.
type Wrapper struct {
	cfg config.BreakerConfig

	mu          sync.Mutex
	st          state
	failures    int
	openedAt    time.Time
	probeInFlight bool
}

// New returns a Wrapper enforcing cfg.
func New(cfg config.BreakerConfig) *Wrapper {
	return &Wrapper{cfg: cfg, st: stateClosed}
}

// Call runs fn, retrying transient venue.Error failures with backoff up to
// cfg.MaxAttempts times. Permanent failures return immediately without
// retry. Every outcome (success, transient exhaustion, or permanent
// failure) updates the breaker's consecutive-failure counter.
func (w *Wrapper) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !w.admit() {
		return domain.ErrCircuitOpen
	}

	var err error
	attempts := w.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			w.recordSuccess()
			return nil
		}
		if !venue.IsTransient(err) {
			w.recordFailure()
			return err
		}
		if attempt == attempts {
			break
		}
		delay := nextDelay(w.cfg.BaseBackoff.Duration, w.cfg.MaxBackoff.Duration, attempt, w.cfg.JitterFraction)
		select {
		case <-ctx.Done():
			w.recordFailure()
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	w.recordFailure()
	return err
}

// admit reports whether a call may proceed, transitioning open -> half-open
// once the cooldown period has elapsed.
func (w *Wrapper) admit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.st {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(w.openedAt) < w.cfg.CooldownPeriod.Duration {
			return false
		}
		w.st = stateHalfOpen
		w.probeInFlight = true
		return true
	case stateHalfOpen:
		// Only the probe call already in flight is allowed through; reject
		// concurrent callers until the probe resolves.
		return false
	default:
		return true
	}
}

func (w *Wrapper) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = 0
	w.st = stateClosed
	w.probeInFlight = false
}

// State reports the breaker's current state as 0 (closed), 1 (half-open),
// or 2 (open), for metrics polling.
func (w *Wrapper) State() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.st {
	case stateClosed:
		return 0
	case stateHalfOpen:
		return 1
	default:
		return 2
	}
}

func (w *Wrapper) recordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.st == stateHalfOpen {
		// Probe failed: reopen immediately and restart the cooldown clock.
		w.st = stateOpen
		w.openedAt = time.Now()
		w.probeInFlight = false
		return
	}

	w.failures++
	if w.failures >= w.cfg.FailureThreshold {
		w.st = stateOpen
		w.openedAt = time.Now()
	}
}
