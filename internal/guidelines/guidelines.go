// Package guidelines loads the product policy text that is appended to
// generation prompts.
package guidelines

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Guideline is one markdown policy file.
type Guideline struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"-"`
}

// Set is an ordered collection of guidelines.
type Set struct {
	items []Guideline
}

// Load reads every *.md file in dir, ordered by file name. A missing
// directory yields an empty set.
func Load(dir string) (*Set, error) {
	if dir == "" {
		return &Set{}, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("glob guidelines: %w", err)
	}
	sort.Strings(paths)

	s := &Set{}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read guideline %s: %w", p, err)
		}
		content := string(b)
		s.items = append(s.items, Guideline{
			ID:      strings.TrimSuffix(filepath.Base(p), ".md"),
			Title:   title(content),
			Content: content,
		})
	}
	return s, nil
}

func title(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// All returns the guidelines in load order.
func (s *Set) All() []Guideline {
	if s == nil {
		return nil
	}
	return append([]Guideline(nil), s.items...)
}

// Content joins every guideline body with a blank line.
func (s *Set) Content() string {
	if s == nil {
		return ""
	}
	parts := make([]string, len(s.items))
	for i, g := range s.items {
		parts[i] = g.Content
	}
	return strings.Join(parts, "\n\n")
}

// Len reports the number of loaded guidelines.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}
