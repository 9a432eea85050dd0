package search

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fernandadias/discoveryrag/pkg/models"
)

// Assembler defaults.
const (
	DefaultTopK          = 10
	DefaultMaxChunkChars = 1000
	DefaultSnippetChars  = 200
)

// Assembler renders ranked candidates into a bounded prompt context and a
// citation list.
type Assembler struct {
	TopK          int
	MaxChunkChars int
	SnippetChars  int
}

// NewAssembler returns an Assembler with default bounds.
func NewAssembler() *Assembler {
	return &Assembler{
		TopK:          DefaultTopK,
		MaxChunkChars: DefaultMaxChunkChars,
		SnippetChars:  DefaultSnippetChars,
	}
}

// Assemble keeps the first TopK candidates in rank order. Each becomes a
// numbered "Documento N (name):" block with its body cut to MaxChunkChars,
// and a citation with a SnippetChars preview.
func (a *Assembler) Assemble(cands []models.Candidate) models.AssembledContext {
	k := a.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	if len(cands) > k {
		cands = cands[:k]
	}

	out := models.AssembledContext{Citations: make([]models.Citation, 0, len(cands))}
	var b strings.Builder
	for i, c := range cands {
		name := displayName(c.Chunk)
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Documento %d (%s):\n%s", i+1, name, truncateRunes(c.Chunk.Content, positive(a.MaxChunkChars, DefaultMaxChunkChars)))

		out.Citations = append(out.Citations, models.Citation{
			ID:      c.Chunk.ID,
			Name:    name,
			Snippet: snippet(c.Chunk.Content, positive(a.SnippetChars, DefaultSnippetChars)),
			Link:    c.Chunk.Metadata.FilePath,
		})
	}
	out.Text = b.String()
	return out
}

// displayName prefers the source file name over chunk titles.
func displayName(c models.Chunk) string {
	switch {
	case c.Metadata.FileName != "":
		return c.Metadata.FileName
	case c.Metadata.FilePath != "":
		return filepath.Base(c.Metadata.FilePath)
	case c.DocumentTitle != "":
		return c.DocumentTitle
	case c.Title != "":
		return c.Title
	}
	return "Sem nome"
}

func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if cut := truncateRunes(s, n); len(cut) < len(s) {
		return cut + "..."
	}
	return s
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
