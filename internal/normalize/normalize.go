// Package normalize turns source files into plain-text documents.
//
// Each format has an ordered list of extraction strategies that are tried
// in turn. When every strategy fails the Normalizer still returns a stub
// document recording the failure, together with an *ExtractionError, so a
// batch run can count the file and move on.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedFormat is returned for files no strategy can read.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ExtractionError reports that every strategy for a file failed.
type ExtractionError struct {
	Path   string
	Format models.Format
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Normalizer extracts text and metadata from files on disk.
type Normalizer struct {
	Runner CommandRunner
	now    func() time.Time
}

// New returns a Normalizer that shells out to the system pdftotext/pdfinfo.
func New() *Normalizer {
	return NewWithRunner(ExecRunner{})
}

// NewWithRunner returns a Normalizer using runner for external tools.
func NewWithRunner(runner CommandRunner) *Normalizer {
	return &Normalizer{Runner: runner, now: time.Now}
}

var extFormats = map[string]models.Format{
	".pdf":      models.FormatPDF,
	".docx":     models.FormatDOCX,
	".doc":      models.FormatDOC,
	".txt":      models.FormatText,
	".text":     models.FormatText,
	".md":       models.FormatMarkdown,
	".markdown": models.FormatMarkdown,
}

// IsSupported reports whether path has an extension the Normalizer reads.
func IsSupported(path string) bool {
	_, ok := extFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// InferFormat maps path to a Format by extension, sniffing the content
// when the extension is missing or unknown.
func InferFormat(path string) models.Format {
	if f, ok := extFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return models.FormatUnknown
	}
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/pdf"):
			return models.FormatPDF
		case m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
			return models.FormatDOCX
		case m.Is("application/msword"):
			return models.FormatDOC
		case m.Is("text/markdown"):
			return models.FormatMarkdown
		case m.Is("text/plain"):
			return models.FormatText
		}
	}
	return models.FormatUnknown
}

// Normalize reads path and returns its document. A non-nil error is either
// ErrUnsupportedFormat (wrapped), an *ExtractionError accompanied by a stub
// document, or an os error when the file itself cannot be stat'ed.
func (n *Normalizer) Normalize(ctx context.Context, path string) (models.Document, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return models.Document{}, fmt.Errorf("%w: %s is a directory", ErrUnsupportedFormat, path)
	}

	format := InferFormat(path)
	doc := models.Document{
		Path:       path,
		Title:      titleFromPath(path),
		Size:       fi.Size(),
		Format:     format,
		ModifiedAt: fi.ModTime(),
		Metadata: models.Metadata{
			FilePath:    path,
			FileName:    filepath.Base(path),
			FileType:    string(format),
			ProcessedAt: n.now().UTC().Format(time.RFC3339),
		},
	}

	var strategies []strategy
	switch format {
	case models.FormatPDF:
		strategies = []strategy{
			{"text-layer", pdfTextLayer},
			{"pdftotext", n.pdfToText},
		}
		n.pdfInfo(ctx, path, &doc.Metadata)
	case models.FormatDOCX:
		strategies = []strategy{
			{"docx-xml", docxXML},
			{"docx-regex", docxRegex},
		}
		docxProperties(path, &doc.Metadata)
	case models.FormatDOC:
		strategies = []strategy{{"doc-regex", docxRegex}}
	case models.FormatText, models.FormatMarkdown:
		strategies = []strategy{{"text", readText}}
	default:
		return doc, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	text, err := attempt(ctx, path, strategies...)
	if err != nil {
		doc.Text = "extraction failed: " + Sanitize(err.Error())
		doc.Metadata.Error = Sanitize(err.Error())
		doc.Metadata = doc.Metadata.Apply(Sanitize)
		return doc, &ExtractionError{Path: path, Format: format, Err: err}
	}

	doc.Text = Sanitize(text)
	if doc.Metadata.Title != "" {
		doc.Title = doc.Metadata.Title
	}
	doc.Title = Sanitize(doc.Title)
	doc.Metadata = doc.Metadata.Apply(Sanitize)
	return doc, nil
}

// titleFromPath turns "guia_de-personas.md" into "guia de personas".
func titleFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
