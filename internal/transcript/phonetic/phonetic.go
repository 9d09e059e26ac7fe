// Package phonetic matches misheard words against a known vocabulary using
// Double Metaphone encoding combined with Jaro-Winkler similarity.
//
// A candidate term qualifies in one of two ways:
//
//  1. Phonetic: the input and the term share a Double Metaphone code and
//     their Jaro-Winkler score reaches the phonetic threshold (default 0.80).
//     Inputs and terms with the same word count compare codes word by word;
//     otherwise the codes of the space-stripped strings are compared.
//  2. Fuzzy: no phonetic candidate exists and the Jaro-Winkler score alone
//     reaches the fuzzy threshold (default 0.90).
//
// Phonetic candidates always win over fuzzy ones. Multi-word terms such as
// "Model Context Protocol" are compared on full strings, on space-stripped
// strings and pairwise per token, keeping the best score.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically overlapping term.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no term
// overlaps phonetically.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type term struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
	joined   map[string]struct{}
}

// Vocabulary is a set of terms with their phonetic codes computed once.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Prepare precomputes phonetic data for terms. Blank terms are skipped.
func Prepare(terms []string) *Vocabulary {
	v := &Vocabulary{}
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			original: strings.TrimSpace(t),
			lower:    lower,
			tokens:   tokens,
			codes:    codesForTokens(tokens),
			joined:   codesForTokens([]string{strings.Join(tokens, "")}),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// MaxWords returns the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Len returns the number of terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// Match finds the term in v most similar to word, which may be a single word
// or a space-separated phrase. When matched is false, corrected equals word
// and confidence is 0.
func (m *Matcher) Match(word string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v == nil || len(v.terms) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)
	inputJoined := codesForTokens([]string{strings.Join(wordTokens, "")})

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for _, t := range v.terms {
		score := bestJWScore(wordTokens, t.tokens, wordLower, t.lower)
		var overlap bool
		if len(wordTokens) == len(t.tokens) {
			overlap = codesOverlap(inputCodes, t.codes)
		} else {
			overlap = codesOverlap(inputJoined, t.joined)
		}
		if overlap {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.original, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.original, score
		}
	}

	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over full strings,
// space-stripped strings and token pairs. Token pairs only count when both
// sides are single words, so one shared word cannot pull in a whole phrase.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, joined)
	}

	if len(inputTokens) == 1 && len(termTokens) == 1 {
		score = max(score, matchr.JaroWinkler(inputTokens[0], termTokens[0], false))
	}
	return score
}
