// Package completion issues the external "mark task completed" call.
//
// The dispatcher treats this call as fire-once: retry responsibility lives
// here, bounded and with exponential backoff for transient failures only.
// A failure that survives the retries is reported back to the dispatcher
// and surfaced on the event bus, never retried again for that entry.
package completion

import (
	"context"
	"time"
)

// Record is the payload persisted when a task is completed by voice match.
type Record struct {
	// TaskID identifies the completed task.
	TaskID string `json:"taskId"`

	// TranscribedText is the transcript that triggered the completion.
	TranscribedText string `json:"transcribedText"`

	// Similarity is the match confidence in [0, 1].
	Similarity float64 `json:"similarity"`

	// Method is the scoring path ("remote" or "fallback").
	Method string `json:"method"`

	// CompletedAt is when the match was committed.
	CompletedAt time.Time `json:"completedAt"`
}

// Completer persists one task completion. From the pipeline's perspective
// the operation is idempotent; the downstream store keys on TaskID.
//
// Implementations must be safe for concurrent use and must respect ctx.
type Completer interface {
	Complete(ctx context.Context, rec Record) error
}
