package normalize

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// pdfTextLayer reads the embedded text layer in-process.
func pdfTextLayer(_ context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	return buf.String(), nil
}

// pdfToText falls back to poppler's layout-preserving extractor.
func (n *Normalizer) pdfToText(ctx context.Context, path string) (string, error) {
	if n.Runner == nil {
		return "", ErrToolNotFound
	}
	out, err := n.Runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(out), nil
}

// pdfInfo fills author, title and creation date from pdfinfo. Failures
// leave the fields empty.
func (n *Normalizer) pdfInfo(ctx context.Context, path string, md *models.Metadata) {
	if n.Runner == nil {
		return
	}
	out, err := n.Runner.Run(ctx, "pdfinfo", path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("pdfinfo unavailable, skipping metadata")
		return
	}
	parsePDFInfo(out, md)
}

func parsePDFInfo(out []byte, md *models.Metadata) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Author":
			md.Author = val
		case "Title":
			md.Title = val
		case "CreationDate":
			md.CreatedAt = val
		case "Pages":
			if md.Extra == nil {
				md.Extra = map[string]string{}
			}
			md.Extra["pages"] = val
		}
	}
}
