package dispatch

import (
	"time"

	"github.com/voxtask/voxtask/internal/similarity"
)

// Type identifies what a queued request asks the dispatcher to do.
type Type string

const (
	// TypeCompleteTask persists one task completion through the configured
	// [completion.Completer].
	TypeCompleteTask Type = "complete-task"

	// TypeVoiceMatchBatch runs a full match sweep of one accumulated
	// transcript against all open tasks, then enqueues a complete-task
	// request for every candidate that clears the threshold.
	TypeVoiceMatchBatch Type = "voice-match-batch"

	// TypeSimilarityRefresh re-evaluates a previously computed score against
	// the completion threshold, enqueuing a complete-task request when it
	// still clears it.
	TypeSimilarityRefresh Type = "similarity-refresh"
)

// Request is one queued unit of dispatcher work. Zero-value fields that a
// given [Type] does not use are ignored.
type Request struct {
	// ID uniquely identifies the request. [Dispatcher.Enqueue] assigns one
	// when empty.
	ID string

	// Type selects the processing path.
	Type Type

	// Immediate requests are processed at the next opportunity instead of
	// waiting for the periodic tick.
	Immediate bool

	// TaskID is the target task for complete-task and similarity-refresh.
	TaskID string

	// Transcript is the accumulated transcript text for voice-match-batch,
	// and the triggering text echoed into the completion record.
	Transcript string

	// Similarity is the match confidence that produced this request.
	Similarity float64

	// Method records which scoring path produced Similarity.
	Method similarity.Method

	// EnqueuedAt is set by [Dispatcher.Enqueue].
	EnqueuedAt time.Time
}
