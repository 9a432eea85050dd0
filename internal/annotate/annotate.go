// Package annotate tags chunks with domain keywords and a coarse semantic
// context label. Everything here is a pure function of the chunk text.
package annotate

import (
	"strings"

	"github.com/fernandadias/discoveryrag/internal/vocab"
	"github.com/fernandadias/discoveryrag/pkg/models"
)

// General is the label used when no context group matches.
const General = "general"

// Annotator derives keywords and context labels from a vocabulary.
type Annotator struct {
	vocab *vocab.Vocabulary
}

// New returns an Annotator over v, or over the default vocabulary when v
// is nil.
func New(v *vocab.Vocabulary) *Annotator {
	if v == nil {
		v = vocab.Default()
	}
	return &Annotator{vocab: v}
}

// Keywords returns the vocabulary terms present in text, deduplicated and in
// vocabulary order.
func (a *Annotator) Keywords(text string) []string {
	return a.vocab.MatchKeywords(text)
}

// Context returns the comma-joined labels of every matching group, or
// General.
func (a *Annotator) Context(text string) string {
	labels := a.vocab.MatchContexts(text)
	if len(labels) == 0 {
		return General
	}
	return strings.Join(labels, ",")
}

// Annotate returns a copy of chunks with Keywords and SemanticContext set.
func (a *Annotator) Annotate(chunks []models.Chunk) []models.Chunk {
	out := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		c.Keywords = a.Keywords(c.Content)
		c.SemanticContext = a.Context(c.Content)
		out[i] = c
	}
	return out
}
