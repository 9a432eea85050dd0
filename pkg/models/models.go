package models

import (
	"sort"
	"time"
)

// Format identifies the source format of a document.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatDOC      Format = "doc"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatUnknown  Format = "unknown"
)

// Document is a normalized source file.
type Document struct {
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	Size       int64     `json:"size"`
	Format     Format    `json:"format"`
	ModifiedAt time.Time `json:"modified_at"`
	Text       string    `json:"text"`
	Metadata   Metadata  `json:"metadata"`
}

// Metadata carries the well-known document fields plus free-form extras.
type Metadata struct {
	FilePath    string            `json:"file_path,omitempty"`
	FileName    string            `json:"file_name,omitempty"`
	FileType    string            `json:"file_type,omitempty"`
	Author      string            `json:"author,omitempty"`
	Title       string            `json:"title,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	ProcessedAt string            `json:"processed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Apply returns a copy of m with fn applied to every string value.
func (m Metadata) Apply(fn func(string) string) Metadata {
	out := Metadata{
		FilePath:    fn(m.FilePath),
		FileName:    fn(m.FileName),
		FileType:    fn(m.FileType),
		Author:      fn(m.Author),
		Title:       fn(m.Title),
		CreatedAt:   fn(m.CreatedAt),
		ProcessedAt: fn(m.ProcessedAt),
		Error:       fn(m.Error),
	}
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[fn(k)] = fn(v)
		}
	}
	return out
}

// Map flattens the metadata into a single string map. Well-known fields win
// over Extra entries with the same key.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("file_path", m.FilePath)
	set("file_name", m.FileName)
	set("file_type", m.FileType)
	set("author", m.Author)
	set("title", m.Title)
	set("created_at", m.CreatedAt)
	set("processed_at", m.ProcessedAt)
	set("error", m.Error)
	return out
}

// MetadataFromMap is the inverse of Map.
func MetadataFromMap(in map[string]string) Metadata {
	var m Metadata
	for k, v := range in {
		switch k {
		case "file_path":
			m.FilePath = v
		case "file_name":
			m.FileName = v
		case "file_type":
			m.FileType = v
		case "author":
			m.Author = v
		case "title":
			m.Title = v
		case "created_at":
			m.CreatedAt = v
		case "processed_at":
			m.ProcessedAt = v
		case "error":
			m.Error = v
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[k] = v
		}
	}
	return m
}

// Chunk is a retrievable unit derived from exactly one Document.
type Chunk struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	DocumentTitle   string    `json:"document_title"`
	Section         string    `json:"section,omitempty"`
	Index           int       `json:"index"`
	Total           int       `json:"total"`
	Content         string    `json:"content"`
	Keywords        []string  `json:"keywords,omitempty"`
	SemanticContext string    `json:"semantic_context,omitempty"`
	Metadata        Metadata  `json:"metadata"`
	CreatedAt       time.Time `json:"created_at"`
}

// Tier names the retrieval stage that produced a candidate.
type Tier string

const (
	TierSemantic Tier = "semantic"
	TierKeyword  Tier = "keyword"
	TierLocal    Tier = "local"
)

// Candidate pairs a chunk with a stage-specific relevance score.
type Candidate struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Tier  Tier    `json:"tier"`
}

// RetrievalResult is the ordered output of one retrieval.
type RetrievalResult struct {
	Query    string      `json:"query"`
	Expanded string      `json:"expanded"`
	Chunks   []Candidate `json:"chunks"`
	Tiers    []Tier      `json:"tiers"`
}

// Empty reports whether no passages were found.
func (r RetrievalResult) Empty() bool { return len(r.Chunks) == 0 }

// Citation is the short source reference shown to end users.
type Citation struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
	Link    string `json:"link,omitempty"`
}

// AssembledContext is the prompt-ready context plus its citations.
type AssembledContext struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// IngestStats accumulates ingestion outcomes.
type IngestStats struct {
	Total       int      `json:"total"`
	Success     int      `json:"success"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
	Chunks      int      `json:"chunks"`
	FailedFiles []string `json:"failed_files"`
}

// Add merges o into s.
func (s *IngestStats) Add(o IngestStats) {
	s.Total += o.Total
	s.Success += o.Success
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Chunks += o.Chunks
	s.FailedFiles = append(s.FailedFiles, o.FailedFiles...)
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
