package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/murmur/internal/transcript/phonetic"
)

// minMatchLen is the shortest window, ignoring spaces, that is considered
// for correction. Shorter words match too many terms by accident.
const minMatchLen = 3

// maxLengthSkew bounds how far a window's length may differ from the
// matched term: at most 1/maxLengthSkew of the term length. It keeps
// prefixes ("open" for "OpenAI") and windows with an extra word from being
// swallowed.
const maxLengthSkew = 4

// Correction records one substitution made by a [Corrector].
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// CorrectorOption configures a [Corrector].
type CorrectorOption func(*Corrector)

// WithMatcher replaces the default [phonetic.Matcher].
func WithMatcher(m *phonetic.Matcher) CorrectorOption {
	return func(c *Corrector) {
		if m != nil {
			c.matcher = m
		}
	}
}

// Corrector rewrites misheard vocabulary terms in speech-to-text output.
// Typed text never passes through it. A Corrector is read-only after
// construction and safe for concurrent use.
type Corrector struct {
	matcher *phonetic.Matcher
	vocab   *phonetic.Vocabulary
}

// NewCorrector prepares vocabulary for matching. A Corrector with an empty
// vocabulary returns its input unchanged.
func NewCorrector(vocabulary []string, opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		matcher: phonetic.New(),
		vocab:   phonetic.Prepare(vocabulary),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct returns text with vocabulary terms substituted and the list of
// substitutions made. Whitespace is normalised to single spaces whenever
// the vocabulary is non-empty.
//
// At each position windows are tried from longest to shortest, so a
// multi-word term wins over a partial single-word match. Windows may be one
// word longer than the longest term to catch terms the recogniser split in
// two. Trailing punctuation of the last word in a window is kept; a window
// never spans a word that ends in punctuation.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if c == nil || c.vocab.Len() == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	maxN := c.vocab.MaxWords() + 1
	out := make([]string, 0, len(tokens))
	var corrections []Correction

	for i := 0; i < len(tokens); {
		n, term, conf, ok := c.matchAt(tokens, i, maxN)
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}

		window, suffix := splitWindow(tokens[i : i+n])
		out = append(out, term+suffix)
		if window != term {
			corrections = append(corrections, Correction{Original: window, Corrected: term, Confidence: conf})
		}
		i += n
	}

	return strings.Join(out, " "), corrections
}

// matchAt returns the longest window starting at tokens[i] that matches a
// vocabulary term.
func (c *Corrector) matchAt(tokens []string, i, maxN int) (n int, term string, conf float64, ok bool) {
	limit := min(maxN, len(tokens)-i)
	for n = limit; n >= 1; n-- {
		if !joinable(tokens[i : i+n]) {
			continue
		}
		window, _ := splitWindow(tokens[i : i+n])
		if utf8.RuneCountInString(strings.ReplaceAll(window, " ", "")) < minMatchLen {
			continue
		}
		if term, conf, ok = c.matcher.Match(window, c.vocab); ok && lengthClose(window, term) {
			return n, term, conf, true
		}
	}
	return 0, "", 0, false
}

func lengthClose(window, term string) bool {
	a := utf8.RuneCountInString(strings.ReplaceAll(window, " ", ""))
	b := utf8.RuneCountInString(strings.ReplaceAll(term, " ", ""))
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff*maxLengthSkew <= b
}

// joinable reports whether no word but the last ends in punctuation.
func joinable(words []string) bool {
	for _, w := range words[:len(words)-1] {
		if trailingPunct(w) != "" {
			return false
		}
	}
	return true
}

// splitWindow joins words with single spaces and separates the trailing
// punctuation of the last word.
func splitWindow(words []string) (window, suffix string) {
	last := words[len(words)-1]
	suffix = trailingPunct(last)
	parts := append(words[:len(words)-1:len(words)-1], strings.TrimSuffix(last, suffix))
	return strings.Join(parts, " "), suffix
}

func trailingPunct(w string) string {
	core := strings.TrimRightFunc(w, unicode.IsPunct)
	return w[len(core):]
}
