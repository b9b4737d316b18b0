package similarity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/voxtask/voxtask/pkg/provider/llm"
)

const (
	defaultLLMTimeout     = 5 * time.Second
	defaultLLMTemperature = 0.1
	defaultLLMMaxTokens   = 128
)

// ErrUnparsableResponse is returned when the model output contains no
// usable similarity value. The parser rejects such output rather than
// guessing.
var ErrUnparsableResponse = errors.New("similarity: unparsable model response")

// systemPrompt instructs the model to judge task completion on a fixed
// numeric scale and to answer with bare JSON.
const systemPrompt = `You judge whether a spoken utterance indicates that a task has been completed.

You are given a task description and a transcript of what a person said.
Rate how strongly the transcript indicates the task is done, on this scale:
- 0.8 to 1.0: the transcript clearly states the task was completed.
- 0.5 to 0.8: the transcript indicates partial or probable completion.
- below 0.5: the transcript does not indicate the task was done.

The transcript may be in Japanese or English and is informal spoken language;
the task description is formal. Judge meaning, not wording.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"similarity": <0.0-1.0>, "reason": "<one short sentence>"}`

// LLMOption is a functional option for configuring an [LLMScorer].
type LLMOption func(*LLMScorer)

// WithLLMTimeout sets the per-call deadline. Default: 5s.
func WithLLMTimeout(d time.Duration) LLMOption {
	return func(s *LLMScorer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLLMRateLimit throttles calls to the backend. The matcher fans out one
// call per open task, so a burst at least the expected task-list size keeps
// a single match cycle unthrottled. Non-positive values leave the scorer
// unthrottled.
func WithLLMRateLimit(callsPerSecond float64, burst int) LLMOption {
	return func(s *LLMScorer) {
		if callsPerSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), burst)
		}
	}
}

// LLMScorer is the primary [RemoteScorer]: a single-shot judgement call to a
// language model with defensive response parsing. Safe for concurrent use.
type LLMScorer struct {
	provider llm.Provider
	timeout  time.Duration
	limiter  *rate.Limiter
}

// Ensure LLMScorer satisfies RemoteScorer at compile time.
var _ RemoteScorer = (*LLMScorer)(nil)

// NewLLMScorer returns an [LLMScorer] backed by provider.
func NewLLMScorer(provider llm.Provider, opts ...LLMOption) *LLMScorer {
	s := &LLMScorer{
		provider: provider,
		timeout:  defaultLLMTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements [RemoteScorer].
func (s *LLMScorer) Name() string {
	return "llm/" + s.provider.ModelID()
}

// ScoreRemote implements [RemoteScorer]. The call carries an explicit
// timeout; a timeout surfaces as an ordinary error and takes the same
// failure path as any other transient fault.
func (s *LLMScorer) ScoreRemote(ctx context.Context, taskText, transcriptText string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("similarity: rate limit wait: %w", err)
		}
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  defaultLLMTemperature,
		MaxTokens:    defaultLLMMaxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("Task: %s\nTranscript: %s", taskText, transcriptText)},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("similarity: llm complete: %w", err)
	}
	if resp == nil {
		return 0, ErrUnparsableResponse
	}

	return parseSimilarity(resp.Content)
}

// parseSimilarity extracts the similarity value from model output. Models
// wrap JSON in code fences or explanatory prose often enough that the parser
// strips fences, locates the first balanced brace structure, and reads the
// "similarity" field from that; anything less well-formed is rejected.
func parseSimilarity(content string) (float64, error) {
	cleaned := stripFences(content)

	obj, ok := firstJSONObject(cleaned)
	if !ok {
		return 0, fmt.Errorf("%w: no JSON object in %q", ErrUnparsableResponse, truncate(content, 120))
	}

	v := gjson.Get(obj, "similarity")
	if !v.Exists() || v.Type != gjson.Number {
		return 0, fmt.Errorf("%w: missing numeric similarity in %q", ErrUnparsableResponse, truncate(obj, 120))
	}
	return clamp01(v.Float()), nil
}

// stripFences removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced {...} structure in s, scanning
// brace depth while honouring string literals and escapes.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// truncate shortens s for inclusion in error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
