// Package resilience provides the circuit breaker and provider failover
// primitives that sit between the similarity scorer and its remote backends.
//
// [Breaker] is a classic three-state circuit breaker (closed → open →
// half-open). [Chain] composes multiple instances of any backend type with
// per-entry breakers so that a failing primary is bypassed in favour of
// healthy fallbacks without the caller noticing.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the reset
// timeout has not yet elapsed.
var ErrOpen = errors.New("circuit breaker is open")

// BreakerConfig holds tuning knobs for a [Breaker]. Zero-value fields are
// replaced with defaults.
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing a
	// probe call. Default: 30s.
	ResetTimeout time.Duration
}

// Breaker is a three-state circuit breaker. In the open state calls are
// rejected immediately with [ErrOpen]; after ResetTimeout a single probe is
// allowed through, closing the breaker on success and re-opening it on
// failure.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	open        bool
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker creates a [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
	}
}

// Do runs fn if the breaker allows it.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.open {
		if time.Since(b.lastFailure) < b.resetTimeout || b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		// Allow exactly one probe call through.
		b.probing = true
		slog.Debug("breaker probing", "name", b.name)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		b.probing = false
		if !b.open && b.failures >= b.maxFailures {
			b.open = true
			slog.Warn("breaker opened",
				"name", b.name,
				"consecutive_failures", b.failures,
			)
		}
		return err
	}

	if b.open {
		slog.Info("breaker closed after successful probe", "name", b.name)
	}
	b.open = false
	b.probing = false
	b.failures = 0
	return nil
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.lastFailure) < b.resetTimeout
}
