package chunker

import (
	"strings"

	"github.com/fernandadias/discoveryrag/pkg/models"
)

const (
	// DefaultChunkSize is the default number of characters per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the default number of characters shared by
	// consecutive chunks.
	DefaultChunkOverlap = 200
	// DefaultTolerance bounds how far a window end may move back to reach a
	// natural break.
	DefaultTolerance = 30
)

// separators in preference order.
var separators = [][]rune{[]rune("\n\n"), []rune("."), []rune("\n"), []rune(" ")}

// Fixed is a sliding-window splitter measured in characters (runes).
// Consecutive chunks share exactly Overlap characters and their union
// covers the whole text.
type Fixed struct {
	size      int
	overlap   int
	tolerance int
}

// Option configures a Fixed splitter.
type Option func(*Fixed)

// WithSize sets the window size in characters.
func WithSize(size int) Option {
	return func(f *Fixed) {
		if size > 0 {
			f.size = size
		}
	}
}

// WithOverlap sets the characters shared by consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(f *Fixed) {
		if overlap >= 0 {
			f.overlap = overlap
		}
	}
}

// WithTolerance sets how far back a window end may snap.
func WithTolerance(tol int) Option {
	return func(f *Fixed) {
		if tol >= 0 {
			f.tolerance = tol
		}
	}
}

// NewFixed returns a Fixed splitter with defaults 1000/200/30.
func NewFixed(opts ...Option) *Fixed {
	f := &Fixed{
		size:      DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.overlap >= f.size {
		f.overlap = f.size / 4
	}
	return f
}

// Size returns the window size.
func (f *Fixed) Size() int { return f.size }

// Overlap returns the configured overlap.
func (f *Fixed) Overlap() int { return f.overlap }

// Split implements Splitter.
func (f *Fixed) Split(doc models.Document) []models.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	bodies := f.windows(doc.Text)
	pieces := make([]piece, len(bodies))
	for i, b := range bodies {
		pieces[i] = piece{body: b}
	}
	return assemble(doc, pieces)
}

// windows returns the raw window bodies of text.
func (f *Fixed) windows(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	var out []string
	start := 0
	for {
		end := start + f.size
		if end >= n {
			out = append(out, string(runes[start:n]))
			return out
		}
		end = f.snap(runes, start, end)
		out = append(out, string(runes[start:end]))
		start = end - f.overlap
	}
}

// snap moves end back to just after the nearest preferred separator found
// within the tolerance. The result always leaves the next window start
// strictly after start.
func (f *Fixed) snap(runes []rune, start, end int) int {
	low := end - f.tolerance
	if floor := start + f.overlap + 1; low < floor {
		low = floor
	}
	for _, sep := range separators {
		for p := end; p >= low; p-- {
			if p-len(sep) < start {
				break
			}
			if hasSuffixAt(runes, p, sep) {
				return p
			}
		}
	}
	return end
}

func hasSuffixAt(runes []rune, p int, sep []rune) bool {
	if p-len(sep) < 0 {
		return false
	}
	for i, r := range sep {
		if runes[p-len(sep)+i] != r {
			return false
		}
	}
	return true
}
