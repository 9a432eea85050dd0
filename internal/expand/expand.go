// Package expand rewrites queries with domain synonyms before retrieval.
package expand

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fernandadias/discoveryrag/internal/vocab"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLen caps the expanded query, in characters.
const DefaultMaxLen = 1000

// Expander appends synonyms and profile phrases to a query.
type Expander struct {
	vocab  *vocab.Vocabulary
	MaxLen int
}

// New returns an Expander over v, or over the default vocabulary when v is
// nil.
func New(v *vocab.Vocabulary) *Expander {
	if v == nil {
		v = vocab.Default()
	}
	return &Expander{vocab: v, MaxLen: DefaultMaxLen}
}

// Expand returns q followed by the synonyms of every token that is a
// synonym key and, for profile questions, the fixed profile phrases.
// Additions keep their table order, appear once and are never terms the
// query already contains.
func (e *Expander) Expand(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	parts := []string{q}
	seen := make(map[string]struct{})
	add := func(term string) {
		f := vocab.Fold(term)
		if _, ok := seen[f]; ok {
			return
		}
		seen[f] = struct{}{}
		if vocab.Contains(q, term) {
			return
		}
		parts = append(parts, term)
	}

	for _, tok := range vocab.Tokens(q) {
		if syns, ok := e.vocab.Synonyms(tok); ok {
			for _, s := range syns {
				add(s)
			}
		}
	}
	if e.vocab.IsProfileQuery(q) {
		for _, t := range e.vocab.ProfileTerms() {
			add(t)
		}
	}

	max := e.MaxLen
	if max <= 0 {
		max = DefaultMaxLen
	}
	return truncateWords(strings.Join(parts, " "), max)
}

// Terms returns the distinct folded tokens of q longer than minLen
// characters, in query order.
func Terms(q string, minLen int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range vocab.Tokens(q) {
		tok = strings.Trim(tok, "-")
		if utf8.RuneCountInString(tok) <= minLen {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// WithSynonyms returns terms followed by their synonyms, folded and
// deduplicated.
func (e *Expander) WithSynonyms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{})
	add := func(t string) {
		f := vocab.Fold(strings.TrimSpace(t))
		if f == "" {
			return
		}
		if _, ok := seen[f]; ok {
			return
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	for _, t := range terms {
		add(t)
		if syns, ok := e.vocab.Synonyms(t); ok {
			for _, s := range syns {
				add(s)
			}
		}
	}
	return out
}

// Forms returns the lowercased tokens of q longer than minLen characters
// and their synonyms, each as written and folded, deduplicated in query
// order. "usuários" yields both "usuários" and "usuarios".
func (e *Expander) Forms(q string, minLen int) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(t string) {
		t = norm.NFC.String(strings.ToLower(strings.TrimSpace(t)))
		for _, f := range []string{t, vocab.Fold(t)} {
			if f == "" {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	for _, tok := range rawTokens(q) {
		tok = strings.Trim(tok, "-")
		if utf8.RuneCountInString(tok) <= minLen {
			continue
		}
		add(tok)
		if syns, ok := e.vocab.Synonyms(tok); ok {
			for _, s := range syns {
				add(s)
			}
		}
	}
	return out
}

// rawTokens splits s like vocab.Tokens but keeps accents.
func rawTokens(s string) []string {
	return strings.FieldsFunc(norm.NFC.String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// truncateWords cuts s to at most max runes, backing off to the last space
// so no word is split.
func truncateWords(s string, max int) string {
	all := []rune(s)
	if len(all) <= max {
		return s
	}
	r := all[:max]
	// A cut right before a space already ends on a word.
	if unicode.IsSpace(all[max]) {
		return strings.TrimSpace(string(r))
	}
	for i := len(r) - 1; i > 0; i-- {
		if unicode.IsSpace(r[i]) {
			return strings.TrimSpace(string(r[:i]))
		}
	}
	return string(r)
}
