package normalize

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fernandadias/discoveryrag/pkg/models"
)

var (
	errNoDocumentXML = errors.New("word/document.xml not found")

	textRunRe   = regexp.MustCompile(`(?s)<w:t[^>]*>(.*?)</w:t>`)
	paragraphRe = regexp.MustCompile(`</w:p>`)
)

type coreXML struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
	Created string `xml:"created"`
}

// docxXML walks word/document.xml and collects every text run at any
// depth, so tables, hyperlinks and content controls keep their text. Each
// closing paragraph ends a line.
func docxXML(_ context.Context, path string) (string, error) {
	raw, err := readZipEntry(path, "word/document.xml")
	if err != nil {
		return "", err
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		lines  []string
		line   strings.Builder
		inRun  int
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "r":
				inRun++
			case "t":
				inText = true
			case "tab":
				// w:tab also declares tab stops inside paragraph properties.
				if inRun > 0 {
					line.WriteByte('\t')
				}
			case "br", "cr":
				if inRun > 0 {
					line.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "r":
				inRun--
			case "t":
				inText = false
			case "p":
				lines = append(lines, line.String())
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(el)
			}
		}
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// docxRegex strips <w:t> runs out of the raw markup. It reads the zip
// entry when the container opens, and the raw file bytes otherwise, which
// covers legacy .doc files carrying embedded XML.
func docxRegex(_ context.Context, path string) (string, error) {
	raw, err := readZipEntry(path, "word/document.xml")
	if err != nil {
		raw, err = os.ReadFile(path)
		if err != nil {
			return "", err
		}
	}
	var lines []string
	for _, para := range paragraphRe.Split(string(raw), -1) {
		var b strings.Builder
		for _, m := range textRunRe.FindAllStringSubmatch(para, -1) {
			b.WriteString(html.UnescapeString(m[1]))
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// docxProperties reads docProps/core.xml best-effort.
func docxProperties(path string, md *models.Metadata) {
	raw, err := readZipEntry(path, "docProps/core.xml")
	if err != nil {
		return
	}
	var core coreXML
	if err := xml.Unmarshal(raw, &core); err != nil {
		return
	}
	md.Title = strings.TrimSpace(core.Title)
	md.Author = strings.TrimSpace(core.Creator)
	md.CreatedAt = strings.TrimSpace(core.Created)
}

func readZipEntry(path, name string) ([]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	if name == "word/document.xml" {
		return nil, errNoDocumentXML
	}
	return nil, fmt.Errorf("%s not found", name)
}
