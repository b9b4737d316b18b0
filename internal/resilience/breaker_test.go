package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Hour})

	fail := func() error { return errBackend }

	if err := b.Do(fail); !errors.Is(err, errBackend) {
		t.Fatalf("want backend error, got %v", err)
	}
	if b.Open() {
		t.Fatal("breaker open after one failure with MaxFailures=2")
	}
	if err := b.Do(fail); !errors.Is(err, errBackend) {
		t.Fatalf("want backend error, got %v", err)
	}
	if !b.Open() {
		t.Fatal("breaker not open after reaching MaxFailures")
	}

	// Calls are now rejected without invoking fn.
	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("want ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("fn called while breaker open")
	}
}

func TestBreakerProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Millisecond})

	_ = b.Do(func() error { return errBackend })
	time.Sleep(5 * time.Millisecond)

	// Probe succeeds and the breaker closes.
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.Open() {
		t.Fatal("breaker still open after successful probe")
	}
}

func TestBreakerProbeReopensOnFailure(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Millisecond})

	_ = b.Do(func() error { return errBackend })
	time.Sleep(5 * time.Millisecond)

	if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("want backend error, got %v", err)
	}
	if !b.Open() {
		t.Fatal("breaker closed after failed probe")
	}
}

func TestChainFallsThroughToHealthyBackend(t *testing.T) {
	t.Parallel()

	type backend func() (float64, error)

	primary := backend(func() (float64, error) { return 0, errBackend })
	secondary := backend(func() (float64, error) { return 0.7, nil })

	c := NewChain("primary", primary, BreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})
	c.Add("secondary", secondary)

	got, err := Run(c, func(b backend) (float64, error) { return b() })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.7 {
		t.Fatalf("want 0.7 from secondary, got %v", got)
	}
}

func TestChainExposesBreakers(t *testing.T) {
	t.Parallel()

	type backend func() (float64, error)
	ok := backend(func() (float64, error) { return 1, nil })

	c := NewChain("primary", ok, BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	c.Add("secondary", ok)

	bs := c.Breakers()
	if len(bs) != 2 || bs["primary"] == nil || bs["secondary"] == nil {
		t.Fatalf("breakers = %v, want primary and secondary", bs)
	}
}

func TestChainAllFailed(t *testing.T) {
	t.Parallel()

	type backend func() (float64, error)
	failing := backend(func() (float64, error) { return 0, errBackend })

	c := NewChain("only", failing, BreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	_, err := Run(c, func(b backend) (float64, error) { return b() })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("want ErrAllFailed, got %v", err)
	}
}
