package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fernandadias/discoveryrag/pkg/models"
)

const (
	// DefaultMaxHeaderLen is the longest paragraph still considered a header.
	DefaultMaxHeaderLen = 100
	introSection        = "Introdução"
)

var (
	blankLineRe = regexp.MustCompile(`\n[ \t\r]*\n`)
	numberedRe  = regexp.MustCompile(`(?i)^(\d+(\.\d+)*\.?|cap[ií]tulo\s+\d+|se[cç][aã]o\s+\d+)\s+\S`)
	underlineRe = regexp.MustCompile(`^(=+|-+)$`)
)

// Semantic groups paragraphs under the most recent header. Sections longer
// than the fallback window are subdivided by it, and documents without any
// detectable header are handed to the fallback unchanged.
type Semantic struct {
	Fallback     *Fixed
	MaxHeaderLen int
}

// NewSemantic returns a semantic splitter falling back to fixed.
func NewSemantic(fixed *Fixed) *Semantic {
	if fixed == nil {
		fixed = NewFixed()
	}
	return &Semantic{Fallback: fixed, MaxHeaderLen: DefaultMaxHeaderLen}
}

type section struct {
	header string
	paras  []string
}

// Split implements Splitter.
func (s *Semantic) Split(doc models.Document) []models.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	sections, found := s.sections(doc.Text)
	if !found {
		return s.Fallback.Split(doc)
	}

	var pieces []piece
	for _, sec := range sections {
		label := sec.header
		if label == "" {
			label = introSection
		}
		parts := make([]string, 0, len(sec.paras)+1)
		if sec.header != "" {
			parts = append(parts, sec.header)
		}
		parts = append(parts, sec.paras...)
		body := strings.Join(parts, "\n\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		if utf8.RuneCountInString(body) <= s.Fallback.size {
			pieces = append(pieces, piece{section: label, body: body})
			continue
		}
		for _, w := range s.Fallback.windows(body) {
			pieces = append(pieces, piece{section: label, body: w})
		}
	}
	if len(pieces) == 0 {
		return s.Fallback.Split(doc)
	}
	return assemble(doc, pieces)
}

// sections groups text paragraphs under headers. found reports whether any
// header was detected.
func (s *Semantic) sections(text string) ([]section, bool) {
	var (
		out   []section
		cur   section
		found bool
	)
	flush := func() {
		if cur.header != "" || len(cur.paras) > 0 {
			out = append(out, cur)
		}
	}
	for _, raw := range blankLineRe.Split(text, -1) {
		para := strings.TrimSpace(raw)
		if para == "" {
			continue
		}
		header, rest := s.header(para)
		if header == "" {
			cur.paras = append(cur.paras, para)
			continue
		}
		found = true
		flush()
		cur = section{header: header}
		if rest != "" {
			cur.paras = append(cur.paras, rest)
		}
	}
	flush()
	return out, found
}

// header reports the header text of para, if any, and the remainder of the
// paragraph following a leading markdown header line.
func (s *Semantic) header(para string) (string, string) {
	first, rest, _ := strings.Cut(para, "\n")
	first = strings.TrimSpace(first)
	rest = strings.TrimSpace(rest)

	if strings.HasPrefix(first, "#") {
		h := strings.TrimSpace(strings.TrimLeft(first, "#"))
		if h != "" && utf8.RuneCountInString(h) < s.MaxHeaderLen {
			return h, rest
		}
	}

	if utf8.RuneCountInString(para) >= s.MaxHeaderLen {
		return "", ""
	}
	if rest != "" && !strings.Contains(rest, "\n") && len(rest) >= 3 && underlineRe.MatchString(rest) {
		return first, ""
	}
	if rest != "" {
		return "", ""
	}
	if numberedRe.MatchString(first) && !strings.HasSuffix(first, ".") {
		return first, ""
	}
	if isAllCaps(first) {
		return first, ""
	}
	return "", ""
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}
