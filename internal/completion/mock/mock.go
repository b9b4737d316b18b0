// Package mock provides a test double for the completion.Completer interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxtask/voxtask/internal/completion"
)

// Completer is a mock implementation of completion.Completer that records
// every call. Set Err to make all calls fail; set ErrFor to fail specific
// task IDs.
type Completer struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from every Complete call.
	Err error

	// ErrFor maps task IDs to the error returned for them.
	ErrFor map[string]error

	// Records holds every Record passed to Complete, in order.
	Records []completion.Record
}

// Complete records the call and returns the configured error, if any.
func (c *Completer) Complete(_ context.Context, rec completion.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Records = append(c.Records, rec)
	if err, ok := c.ErrFor[rec.TaskID]; ok {
		return err
	}
	return c.Err
}

// CallsFor returns the number of recorded calls for the given task ID.
func (c *Completer) CallsFor(taskID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, r := range c.Records {
		if r.TaskID == taskID {
			n++
		}
	}
	return n
}

// Count returns the total number of recorded calls.
func (c *Completer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Records)
}

// Ensure Completer implements completion.Completer at compile time.
var _ completion.Completer = (*Completer)(nil)
