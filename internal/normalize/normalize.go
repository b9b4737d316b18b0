// Package normalize canonicalises transcript fragments and task descriptions
// into a comparable form before similarity scoring.
//
// Two levels are provided:
//
//   - [Normalize] performs lossless-ish cleanup: whitespace, sentence
//     punctuation, Latin case, and full-width space conversion. The result is
//     suitable for display and logging.
//
//   - [ForMatching] additionally strips a fixed stoplist of Japanese polite
//     verb endings and case particles so that content words dominate
//     comparison. The result is only meaningful as scorer input.
//
// Both functions are pure and deterministic: no I/O, no failure modes, and
// Normalize(Normalize(x)) == Normalize(x) for all inputs.
package normalize

import "strings"

// punctuation stripped everywhere in the text. Sentence-final marks plus
// their Latin equivalents; commas are included because STT output sprinkles
// them unpredictably between clauses.
const punctuation = "。、！？,.!?"

// politeEndings are conjugated polite verb endings removed before matching.
// Ordered longest-first so that e.g. させていただきました is consumed before
// ました can match inside it.
var politeEndings = []string{
	"させていただきました",
	"させていただきます",
	"いたしました",
	"いたします",
	"お願いします",
	"ください",
	"しました",
	"します",
	"ました",
	"でした",
	"ます",
	"です",
}

// particlePhrases are multi-character function words removed before matching.
var particlePhrases = []string{
	"について",
	"に関して",
	"として",
	"ところ",
	"から",
	"まで",
	"など",
	"こと",
}

// latinStopwords are function words dropped token-wise from space-separated
// (Latin) text.
var latinStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {}, "for": {},
	"and": {}, "or": {}, "on": {}, "in": {}, "at": {}, "is": {},
	"was": {}, "have": {}, "has": {}, "i": {}, "we": {}, "it": {},
	"please": {},
}

// Normalize canonicalises raw text: trims and collapses whitespace, converts
// full-width spaces to half-width, strips sentence punctuation, and
// lower-cases Latin characters. Empty input yields the empty string.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ToLower(text)
	s = strings.ReplaceAll(s, "　", " ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(punctuation, r) {
			continue
		}
		b.WriteRune(r)
	}

	// Collapse internal whitespace runs and trim in one pass.
	return strings.Join(strings.Fields(b.String()), " ")
}

// ForMatching normalises text and removes the function-word stoplist:
// Japanese polite verb endings, case particle phrases, and common Latin
// stopword tokens. Single-character case particles are left in place here;
// the lexical scorer treats them as token delimiters instead, which keeps
// content words like 予算 intact.
func ForMatching(text string) string {
	s := Normalize(text)
	if s == "" {
		return ""
	}

	for _, e := range politeEndings {
		s = strings.ReplaceAll(s, e, "")
	}
	for _, p := range particlePhrases {
		s = strings.ReplaceAll(s, p, "")
	}

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, stop := latinStopwords[f]; stop {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
