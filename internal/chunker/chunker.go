// Package chunker splits normalized documents into bounded, retrievable
// chunks. Two strategies are available: Fixed slides an overlapping window
// over the text, Semantic groups paragraphs under detected section headers.
package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fernandadias/discoveryrag/pkg/models"
)

// Strategy names accepted by New.
const (
	StrategyFixed    = "fixed"
	StrategySemantic = "semantic"
)

// Splitter divides a document into ordered chunks. Implementations never
// return zero chunks for a document with non-blank text.
type Splitter interface {
	Split(doc models.Document) []models.Chunk
}

// New builds a splitter from configuration values.
func New(strategy string, size, overlap int) (Splitter, error) {
	fixed := NewFixed(WithSize(size), WithOverlap(overlap))
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyFixed:
		return fixed, nil
	case StrategySemantic:
		return NewSemantic(fixed), nil
	default:
		return nil, fmt.Errorf("unknown chunk strategy %q", strategy)
	}
}

// ForFormat picks the splitter for a document format: markdown carries
// explicit headers and always uses semantic sections, everything else uses
// def.
func ForFormat(format models.Format, def Splitter) Splitter {
	if format != models.FormatMarkdown {
		return def
	}
	switch s := def.(type) {
	case *Semantic:
		return s
	case *Fixed:
		return NewSemantic(s)
	}
	return NewSemantic(NewFixed())
}

type piece struct {
	section string
	body    string
}

// assemble turns ordered pieces into chunks carrying parent metadata.
func assemble(doc models.Document, pieces []piece) []models.Chunk {
	out := make([]models.Chunk, 0, len(pieces))
	for i, p := range pieces {
		out = append(out, models.Chunk{
			Title:         chunkTitle(doc.Title, i),
			DocumentTitle: doc.Title,
			Section:       p.section,
			Index:         i,
			Total:         len(pieces),
			Content:       p.body,
			Metadata:      doc.Metadata.Clone(),
		})
	}
	return out
}

func chunkTitle(docTitle string, i int) string {
	return docTitle + " (parte " + strconv.Itoa(i+1) + ")"
}
