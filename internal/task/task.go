// Package task defines the checklist task model and the Store interface the
// pipeline reads open tasks from and commits completions to.
//
// Tasks are created in bulk when a checklist is generated (outside this
// subsystem), and are only ever mutated here by marking them completed.
// Completion is monotonic: a completed task never reverts to open.
package task

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a task ID does not exist in the store.
var ErrNotFound = errors.New("task: not found")

// Priority is the informational urgency level of a task. The pipeline carries
// it through but never branches on it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid reports whether p is a recognised priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is one actionable item in a checklist.
type Task struct {
	// ID is an opaque identifier, stable for the task's lifetime.
	ID string

	// Description is the natural-language text describing the action.
	Description string

	// Completed is monotonic: once true it never reverts.
	Completed bool

	// Priority is informational only.
	Priority Priority

	// CompletedAt records when the task was marked completed. Zero while open.
	CompletedAt time.Time
}

// Store provides access to the task list. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put inserts or replaces tasks in bulk. A task that is already completed
	// in the store stays completed even if the incoming copy is open.
	Put(tasks ...Task)

	// Get returns the task with the given ID.
	Get(id string) (Task, error)

	// ListOpen returns a snapshot of all tasks with Completed == false,
	// ordered by ID for determinism.
	ListOpen() []Task

	// MarkCompleted sets Completed on the task with the given ID. Marking an
	// already-completed task is a no-op, not an error.
	MarkCompleted(id string, at time.Time) error
}
