// Package event provides the publish/subscribe bus that decouples dispatcher
// outcomes from their observers (UI bridges, logging, metrics).
//
// Events form a closed tagged union: every payload is a fixed struct
// implementing [Event], so subscribers can switch exhaustively on the
// concrete type instead of probing a dynamic payload shape.
package event

import "time"

// Kind identifies an event type on the bus.
type Kind string

const (
	// KindUpdateSuccess is emitted once per successfully processed
	// dispatcher entry.
	KindUpdateSuccess Kind = "updateSuccess"

	// KindUpdateError is emitted once per failed dispatcher entry.
	KindUpdateError Kind = "updateError"

	// KindBatchComplete is emitted after every dispatcher batch.
	KindBatchComplete Kind = "batchComplete"

	// KindSessionStarted is emitted when a recording session begins.
	KindSessionStarted Kind = "sessionStarted"

	// KindSessionStopped is emitted when a recording session has stopped and
	// its final flush (if any) has been enqueued.
	KindSessionStopped Kind = "sessionStopped"
)

// Event is implemented by every payload struct in this package and nowhere
// else.
type Event interface {
	// EventKind returns the [Kind] this payload is published under.
	EventKind() Kind
}

// UpdateSuccess reports one dispatcher entry that resolved successfully.
type UpdateSuccess struct {
	// RequestID is the unique ID of the processed request.
	RequestID string

	// RequestType is the dispatcher request type (e.g. "complete-task").
	RequestType string

	// TaskID is the affected task, when the request targets one.
	TaskID string

	// Similarity is the match confidence that triggered the request, when
	// applicable.
	Similarity float64
}

// EventKind implements [Event].
func (UpdateSuccess) EventKind() Kind { return KindUpdateSuccess }

// UpdateError reports one dispatcher entry that failed terminally.
// The entry is dropped after this event; it is not retried or persisted.
type UpdateError struct {
	// RequestID is the unique ID of the failed request.
	RequestID string

	// RequestType is the dispatcher request type. For unknown-type failures
	// this carries the unrecognised value verbatim.
	RequestType string

	// TaskID is the affected task, when the request targets one.
	TaskID string

	// Err is the terminal failure.
	Err error
}

// EventKind implements [Event].
func (UpdateError) EventKind() Kind { return KindUpdateError }

// BatchComplete summarises one dispatcher batch.
type BatchComplete struct {
	// Succeeded is the number of entries in the batch that resolved
	// successfully.
	Succeeded int

	// Failed is the number of entries that failed.
	Failed int

	// Remaining is the pending queue depth after the batch was drained.
	Remaining int

	// Duration is the wall-clock time the batch took.
	Duration time.Duration
}

// EventKind implements [Event].
func (BatchComplete) EventKind() Kind { return KindBatchComplete }

// SessionStarted announces a new recording session.
type SessionStarted struct {
	// SessionID identifies the recording session.
	SessionID string
}

// EventKind implements [Event].
func (SessionStarted) EventKind() Kind { return KindSessionStarted }

// SessionStopped announces that a recording session has closed.
type SessionStopped struct {
	// SessionID identifies the recording session.
	SessionID string

	// Fragments is the total number of transcript fragments the session
	// ingested.
	Fragments int
}

// EventKind implements [Event].
func (SessionStopped) EventKind() Kind { return KindSessionStopped }
