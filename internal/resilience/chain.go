package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Chain] fails or has an
// open breaker.
var ErrAllFailed = errors.New("all backends failed")

// chainEntry pairs a backend value with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain wraps a primary and zero or more fallback instances of the same
// backend type. When the primary fails (or its breaker is open), the next
// healthy fallback is tried in registration order.
//
// Chain is safe for concurrent use after construction; Add must not be
// called concurrently with Run.
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     BreakerConfig
}

// NewChain creates a [Chain] with primary as the first entry. cfg seeds the
// per-entry breaker configuration; the Name field is overridden per entry.
func NewChain[T any](primaryName string, primary T, cfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback backend. Fallbacks are tried in the order added.
func (c *Chain[T]) Add(name string, backend T) {
	cfg := c.cfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   backend,
		breaker: NewBreaker(cfg),
	})
}

// Breakers returns each entry's circuit breaker keyed by backend name, so
// callers can surface breaker state in readiness checks.
func (c *Chain[T]) Breakers() map[string]*Breaker {
	out := make(map[string]*Breaker, len(c.entries))
	for i := range c.entries {
		out[c.entries[i].name] = c.entries[i].breaker
	}
	return out
}

// Run tries fn against each entry in order until one succeeds, returning the
// result. This is a package-level function because Go does not support
// method-level type parameters.
func Run[T any, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping backend (breaker open)", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
