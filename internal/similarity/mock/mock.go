// Package mock provides test doubles for the similarity.Scorer interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxtask/voxtask/internal/similarity"
)

// ScoreCall records a single invocation of Score.
type ScoreCall struct {
	// TaskText is the task description passed to Score.
	TaskText string
	// TranscriptText is the transcript passed to Score.
	TranscriptText string
}

// Scorer is a mock implementation of similarity.Scorer. Scores maps task
// text to the similarity returned for it; unknown task texts score zero.
type Scorer struct {
	mu sync.Mutex

	// Scores maps task text to the similarity value returned for it.
	Scores map[string]float64

	// Method is the method reported on every result. Defaults to
	// similarity.MethodFallback.
	Method similarity.Method

	// ScoreCalls records every invocation in order.
	ScoreCalls []ScoreCall
}

// Score records the call and returns the configured score for taskText.
func (s *Scorer) Score(_ context.Context, taskText, transcriptText string) similarity.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ScoreCalls = append(s.ScoreCalls, ScoreCall{TaskText: taskText, TranscriptText: transcriptText})

	method := s.Method
	if method == "" {
		method = similarity.MethodFallback
	}
	return similarity.Result{Similarity: s.Scores[taskText], Method: method}
}

// CallCount returns the number of recorded Score invocations.
func (s *Scorer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ScoreCalls)
}

// Ensure Scorer implements similarity.Scorer at compile time.
var _ similarity.Scorer = (*Scorer)(nil)
