package similarity

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/voxtask/voxtask/internal/normalize"
)

// substringScore is awarded when one normalised text contains the other
// outright, the strongest lexical signal short of equality.
const substringScore = 0.9

// keywordBonus is added once per domain keyword present in both texts.
const keywordBonus = 0.1

// jaroWinklerThreshold is the minimum Jaro-Winkler score for two Latin
// tokens to count as overlapping despite not containing each other.
// STT output frequently mangles word endings; 0.9 keeps this conservative.
const jaroWinklerThreshold = 0.9

// DefaultKeywords is the curated list of domain-significant terms that earn
// the additive bonus when present in both the task and the transcript.
// Covers approval, budgeting, and scheduling vocabulary in Japanese and
// English.
var DefaultKeywords = []string{
	"予算", "確認", "承認", "見積", "日程", "会議", "契約", "納期", "支払", "連絡", "資料", "予約",
	"budget", "approval", "confirm", "schedule", "estimate", "invoice", "meeting", "deadline",
}

// particleDelimiters are single-character Japanese case particles treated as
// token boundaries. Splitting on them recovers content words from
// unsegmented Japanese text (予算感を確認 → 予算感, 確認).
const particleDelimiters = "をにはがのとでへもや"

// Lexical is the deterministic local scorer used when every remote backend
// is unavailable. Given identical normalised inputs it always returns the
// same score. Read-only after construction, safe for concurrent use.
type Lexical struct {
	keywords []string
}

// Ensure Lexical satisfies Scorer at compile time.
var _ Scorer = (*Lexical)(nil)

// NewLexical returns a [Lexical] scorer crediting the given domain keywords.
// With no keywords, [DefaultKeywords] is used.
func NewLexical(keywords ...string) *Lexical {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	normalised := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if n := normalize.Normalize(k); n != "" {
			normalised = append(normalised, n)
		}
	}
	return &Lexical{keywords: normalised}
}

// Score implements [Scorer]. The method is always [MethodFallback].
//
// Scoring:
//  1. Substring containment either direction (after matching normalisation)
//     scores 0.9.
//  2. Otherwise, the fraction of task tokens that overlap a transcript
//     token (containment either direction, or near-identical Latin tokens
//     by Jaro-Winkler).
//  3. +0.1 for each domain keyword present in both texts, capped at 1.0.
func (l *Lexical) Score(_ context.Context, taskText, transcriptText string) Result {
	taskNorm := normalize.ForMatching(taskText)
	transcriptNorm := normalize.ForMatching(transcriptText)
	if taskNorm == "" || transcriptNorm == "" {
		return Result{Similarity: 0, Method: MethodFallback}
	}

	var base float64
	if strings.Contains(transcriptNorm, taskNorm) || strings.Contains(taskNorm, transcriptNorm) {
		base = substringScore
	} else {
		taskTokens := tokenize(taskNorm)
		transcriptTokens := tokenize(transcriptNorm)
		if len(taskTokens) > 0 {
			matched := 0
			for _, tt := range taskTokens {
				if overlapsAny(tt, transcriptTokens) {
					matched++
				}
			}
			base = float64(matched) / float64(len(taskTokens))
		}
	}

	for _, kw := range l.keywords {
		if strings.Contains(taskNorm, kw) && strings.Contains(transcriptNorm, kw) {
			base += keywordBonus
		}
	}

	return Result{Similarity: clamp01(base), Method: MethodFallback}
}

// tokenize splits normalised text into content tokens: boundaries are
// whitespace, punctuation, and single-character case particles. Tokens of
// one rune or less carry no signal and are dropped.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) ||
			unicode.IsPunct(r) ||
			unicode.IsSymbol(r) ||
			strings.ContainsRune(particleDelimiters, r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// overlapsAny reports whether token overlaps any of the candidates:
// containment in either direction, or a Jaro-Winkler near-match for Latin
// tokens.
func overlapsAny(token string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(c, token) || strings.Contains(token, c) {
			return true
		}
		if isASCII(token) && isASCII(c) &&
			matchr.JaroWinkler(token, c, false) >= jaroWinklerThreshold {
			return true
		}
	}
	return false
}

// isASCII reports whether s contains only ASCII bytes.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
