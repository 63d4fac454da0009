// Package symbols rewrites spoken symbol names in dictated text into the
// literal glyphs they name ("new line" → '\n', "em dash" → '—').
//
// STT engines tend to surround spoken symbol names with stray commas
// ("Dear John, new line, new line, I wanted..."), so a replacement also
// absorbs the filler punctuation around the matched phrase.
package symbols

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Replacer performs deterministic spoken-phrase to glyph substitution.
// The zero value is not usable; construct with [NewReplacer] or use [Default].
//
// Replacer is safe for concurrent use: the phrase table is immutable after
// construction.
type Replacer struct {
	ordered []Mapping
}

var (
	defaultOnce     sync.Once
	defaultReplacer *Replacer
)

// Default returns the shared Replacer backed by [DefaultTable].
func Default() *Replacer {
	defaultOnce.Do(func() {
		defaultReplacer = NewReplacer(DefaultTable())
	})
	return defaultReplacer
}

// NewReplacer builds a Replacer from table. Phrases are ordered by length
// descending so that multi-word phrases always win over any shorter phrase
// they contain ("em dash" is matched before "dash" ever gets a chance).
// Equal-length phrases keep their declaration order.
func NewReplacer(table []Mapping) *Replacer {
	ordered := make([]Mapping, len(table))
	copy(ordered, table)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Spoken) > len(ordered[j].Spoken)
	})
	return &Replacer{ordered: ordered}
}

// Replace rewrites every spoken symbol phrase in text into its glyph and
// returns the result. Characters outside matched phrases, including existing
// newlines and glyphs, are preserved verbatim.
//
// Each phrase is applied as one full pass over the working text, longest
// phrase first, so a later phrase operates on the output of all earlier
// substitutions. Matching is case-insensitive and requires both phrase
// boundaries to be non-alphanumeric (or the string edge), which keeps "dash"
// from firing inside "endashboard".
//
// Replace is idempotent on its own output as long as no replacement glyph
// spells a spoken phrase.
func (r *Replacer) Replace(text string) string {
	result := text
	for _, m := range r.ordered {
		result = applyMapping(result, m)
	}
	return result
}

// Replace applies the shared default table. See [Replacer.Replace].
func Replace(text string) string {
	return Default().Replace(text)
}

// applyMapping substitutes every boundary-valid occurrence of m.Spoken in
// text with m.Glyph.
//
// Around an accepted match the filler punctuation the STT engine inserted is
// absorbed: spaces and commas immediately before the phrase are dropped, and
// after the phrase a leading comma is dropped. When the glyph contains a
// newline the trailing cleanup is more aggressive and also removes spaces and
// a stray period, so "sentence, new line, Next" becomes "sentence\nNext".
func applyMapping(text string, m Mapping) string {
	var out strings.Builder
	remaining := text
	for remaining != "" {
		pos := indexFold(remaining, m.Spoken)
		if pos < 0 {
			out.WriteString(remaining)
			break
		}
		end := pos + len(m.Spoken)
		if !boundaryOK(remaining, pos, end) {
			// Inside a larger word; emit up to and including the first
			// matched byte and keep scanning after it.
			out.WriteString(remaining[:pos+1])
			remaining = remaining[pos+1:]
			continue
		}
		out.WriteString(strings.TrimRight(remaining[:pos], " ,"))
		out.WriteString(m.Glyph)
		if strings.Contains(m.Glyph, "\n") {
			remaining = strings.TrimLeft(remaining[end:], " ,.")
		} else {
			remaining = strings.TrimLeft(remaining[end:], ",")
		}
	}
	return out.String()
}

// indexFold returns the byte index of the first case-insensitive occurrence
// of phrase in s, or -1. Phrases are plain ASCII, so a window of len(phrase)
// bytes either folds to the phrase rune-for-rune or does not match at all.
func indexFold(s, phrase string) int {
	n := len(phrase)
	if n == 0 || n > len(s) {
		return -1
	}
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], phrase) {
			return i
		}
	}
	return -1
}

// boundaryOK reports whether the match at s[start:end] sits on word
// boundaries: the adjacent runes on both sides must be non-alphanumeric or
// the string edge.
func boundaryOK(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}
