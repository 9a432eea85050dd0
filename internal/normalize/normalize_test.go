package normalize

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// mockRunner is a test double for CommandRunner keyed by command name.
type mockRunner struct {
	outputs map[string][]byte
	errs    map[string]error
	calls   []string
}

func (m *mockRunner) Run(_ context.Context, name string, _ ...string) ([]byte, error) {
	m.calls = append(m.calls, name)
	if err, ok := m.errs[name]; ok {
		return nil, err
	}
	return m.outputs[name], nil
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0644))
	return p
}

func writeDocx(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for n, body := range entries {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

const documentXMLBody = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Perfis de usuários</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Personas e </w:t></w:r><w:r><w:t>segmentação</w:t></w:r></w:p>
</w:body>
</w:document>`

const coreXMLBody = `<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">
<dc:title>Guia de Personas</dc:title>
<dc:creator>Time de Discovery</dc:creator>
<dcterms:created>2024-03-01T10:00:00Z</dcterms:created>
</cp:coreProperties>`

func TestNormalize_PlainText(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "guia_de-perfis.txt", []byte("Perfis de usuários\n\nConteúdo."))

	doc, err := New().Normalize(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "Perfis de usuários\n\nConteúdo.", doc.Text)
	assert.Equal(t, "guia de perfis", doc.Title)
	assert.Equal(t, models.FormatText, doc.Format)
	assert.Equal(t, int64(len("Perfis de usuários\n\nConteúdo.")), doc.Size)
	assert.Equal(t, p, doc.Metadata.FilePath)
	assert.Equal(t, "guia_de-perfis.txt", doc.Metadata.FileName)
	assert.Equal(t, "txt", doc.Metadata.FileType)
	assert.NotEmpty(t, doc.Metadata.ProcessedAt)
	assert.False(t, doc.ModifiedAt.IsZero())
}

func TestNormalize_Markdown(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "notas.md", []byte("# Título\n\ncorpo"))

	doc, err := New().Normalize(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, models.FormatMarkdown, doc.Format)
	assert.Equal(t, "# Título\n\ncorpo", doc.Text)
}

func TestNormalize_TextPermissiveEncoding(t *testing.T) {
	dir := t.TempDir()

	t.Run("windows-1252 fallback", func(t *testing.T) {
		p := writeFile(t, dir, "latin.txt", []byte("caf\xe9 com p\xe3o"))
		doc, err := New().Normalize(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, "café com pão", doc.Text)
	})

	t.Run("mostly utf-8 with stray byte", func(t *testing.T) {
		p := writeFile(t, dir, "mixed.txt", []byte("olá \xff mundo"))
		doc, err := New().Normalize(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, "olá  mundo", doc.Text)
	})
}

func TestNormalize_Docx(t *testing.T) {
	dir := t.TempDir()
	p := writeDocx(t, dir, "personas.docx", map[string]string{
		"word/document.xml": documentXMLBody,
		"docProps/core.xml": coreXMLBody,
	})

	doc, err := New().Normalize(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "Perfis de usuários\nPersonas e segmentação", doc.Text)
	assert.Equal(t, "Guia de Personas", doc.Title)
	assert.Equal(t, "Time de Discovery", doc.Metadata.Author)
	assert.Equal(t, "2024-03-01T10:00:00Z", doc.Metadata.CreatedAt)
	assert.Equal(t, models.FormatDOCX, doc.Format)
}

func TestNormalize_DocxNestedText(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<w:body>
<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>Intro</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Veja </w:t></w:r><w:hyperlink r:id="rId5"><w:r><w:t>LinkedText</w:t></w:r></w:hyperlink></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>TableCell</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>A</w:t><w:tab/><w:t>B</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
<w:sdt><w:sdtContent><w:p><w:r><w:t>Controlado</w:t></w:r></w:p></w:sdtContent></w:sdt>
</w:body>
</w:document>`
	p := writeDocx(t, t.TempDir(), "aninhado.docx", map[string]string{"word/document.xml": body})

	doc, err := New().Normalize(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Intro\nVeja LinkedText\nTableCell\nA\tB\nControlado", doc.Text)
}

func TestNormalize_DocxFallsBackToRegex(t *testing.T) {
	dir := t.TempDir()
	// Unbalanced markup defeats encoding/xml but not the run regex.
	broken := `<w:document><w:body><w:p><w:r><w:t>Texto &amp; recuperado</w:t></w:r></w:p><w:p><w:t>segunda</w:t></w:p>`
	p := writeDocx(t, dir, "quebrado.docx", map[string]string{"word/document.xml": broken})

	doc, err := New().Normalize(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Texto & recuperado\nsegunda", doc.Text)
	assert.Equal(t, "quebrado", doc.Title)
}

func TestNormalize_DocWithEmbeddedXML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "legado.doc", []byte("\x00\x01junk<w:t>conteúdo legado</w:t></w:p>junk"))

	doc, err := New().Normalize(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "conteúdo legado", doc.Text)
	assert.Equal(t, models.FormatDOC, doc.Format)
}

func TestNormalize_PDFFallsBackToPdftotext(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "relatorio.pdf", []byte("not really a pdf"))
	runner := &mockRunner{outputs: map[string][]byte{
		"pdftotext": []byte("texto extraído pelo layout"),
		"pdfinfo":   []byte("Title:          Relatório Anual\nAuthor:         Ana\nCreationDate:   Mon Jan  1 10:00:00 2024\nPages:          3\n"),
	}}

	doc, err := NewWithRunner(runner).Normalize(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "texto extraído pelo layout", doc.Text)
	assert.Equal(t, "Relatório Anual", doc.Title)
	assert.Equal(t, "Ana", doc.Metadata.Author)
	assert.Equal(t, "Mon Jan  1 10:00:00 2024", doc.Metadata.CreatedAt)
	assert.Equal(t, "3", doc.Metadata.Extra["pages"])
	assert.Contains(t, runner.calls, "pdftotext")
}

func TestNormalize_PDFMetadataFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "sem-meta.pdf", []byte("garbage"))
	runner := &mockRunner{
		outputs: map[string][]byte{"pdftotext": []byte("corpo")},
		errs:    map[string]error{"pdfinfo": errors.New("boom")},
	}

	doc, err := NewWithRunner(runner).Normalize(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "corpo", doc.Text)
	assert.Empty(t, doc.Metadata.Author)
	assert.Empty(t, doc.Metadata.Title)
	assert.Equal(t, "sem meta", doc.Title)
}

func TestNormalize_AllStrategiesFailProducesStub(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "ruim.pdf", []byte("garbage"))
	runner := &mockRunner{errs: map[string]error{
		"pdftotext": ErrToolNotFound,
		"pdfinfo":   ErrToolNotFound,
	}}

	doc, err := NewWithRunner(runner).Normalize(context.Background(), p)
	require.Error(t, err)

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, p, exErr.Path)
	assert.Equal(t, models.FormatPDF, exErr.Format)
	assert.True(t, errors.Is(err, ErrToolNotFound))

	assert.True(t, strings.HasPrefix(doc.Text, "extraction failed: "))
	assert.NotEmpty(t, doc.Metadata.Error)
	assert.Equal(t, p, doc.Metadata.FilePath)
}

func TestNormalize_EmptyPDFOutputCountsAsFailure(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "vazio.pdf", []byte("garbage"))
	runner := &mockRunner{outputs: map[string][]byte{"pdftotext": []byte("   \n")}}

	_, err := NewWithRunner(runner).Normalize(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errEmptyText))
}

func TestNormalize_Unsupported(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "imagem.xyz", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))

	_, err := New().Normalize(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalize_MissingFile(t *testing.T) {
	_, err := New().Normalize(context.Background(), "/non/existent/file.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}

func TestInferFormat(t *testing.T) {
	dir := t.TempDir()
	noExt := writeFile(t, dir, "LEIAME", []byte("apenas texto simples aqui"))

	tests := []struct {
		path string
		want models.Format
	}{
		{"a.PDF", models.FormatPDF},
		{"a.docx", models.FormatDOCX},
		{"a.doc", models.FormatDOC},
		{"a.txt", models.FormatText},
		{"a.markdown", models.FormatMarkdown},
		{noExt, models.FormatText},
		{filepath.Join(dir, "missing.bin"), models.FormatUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferFormat(tt.path), tt.path)
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("x.md"))
	assert.True(t, IsSupported("X.DOCX"))
	assert.False(t, IsSupported("x.png"))
	assert.False(t, IsSupported("x"))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"nul and controls", "a\x00b\x07c", "abc"},
		{"keeps whitespace", "a\tb\nc\r", "a\tb\nc\r"},
		{"encoded surrogate", "x\xed\xa0\x80y", "xy"},
		{"invalid byte", "ok\xffok", "okok"},
		{"replacement char", "a\uFFFDb", "ab"},
		{"nfc", "e\u0301", "\u00e9"},
		{"untouched", "Personalização da Home", "Personalização da Home"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestAttempt(t *testing.T) {
	ctx := context.Background()
	fail := strategy{"fail", func(context.Context, string) (string, error) { return "", errors.New("nope") }}
	blank := strategy{"blank", func(context.Context, string) (string, error) { return "  ", nil }}
	boom := strategy{"boom", func(context.Context, string) (string, error) { panic("kaboom") }}
	ok := strategy{"ok", func(context.Context, string) (string, error) { return "texto", nil }}

	t.Run("first success wins", func(t *testing.T) {
		text, err := attempt(ctx, "p", fail, blank, boom, ok)
		require.NoError(t, err)
		assert.Equal(t, "texto", text)
	})

	t.Run("joined failures", func(t *testing.T) {
		_, err := attempt(ctx, "p", fail, boom)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail: nope")
		assert.Contains(t, err.Error(), "extractor panicked")
	})

	t.Run("cancelled context stops", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := attempt(cctx, "p", ok)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
