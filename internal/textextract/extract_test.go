package textextract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintake/internal/model"
)

// minimalPDF renders a single-page PDF showing text, with a correct xref
// table.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func docx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractTextPlain(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("hello\nworld"))
	text, err := New().ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", text)
}

func TestExtractTextPlainRejectsInvalidUTF8(t *testing.T) {
	path := writeFile(t, "bin.txt", []byte{0xff, 0xfe, 0x00, 0x41})
	_, err := New().ExtractText(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTF-8")
}

func TestExtractTextTruncates(t *testing.T) {
	path := writeFile(t, "long.txt", []byte(strings.Repeat("é", 10)))
	ex := &Extractor{MaxBytes: 5}
	text, err := ex.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "éé", text)
}

func TestExtractTextPDF(t *testing.T) {
	path := writeFile(t, "report.pdf", minimalPDF("Hello PDF"))
	text, err := New().ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello")
}

func TestExtractTextCorruptPDF(t *testing.T) {
	path := writeFile(t, "broken.pdf", []byte("not a pdf at all"))
	_, err := New().ExtractText(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not extract text from PDF")
}

func TestExtractTextDOCX(t *testing.T) {
	body := `<?xml version="1.0"?><w:document xmlns:w="w"><w:body>` +
		`<w:p><w:r><w:t>First   paragraph</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	path := writeFile(t, "memo.docx", docx(t, body))
	text, err := New().ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph Second", text)
}

func TestExtractTextDOCXMissingBody(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, err := w.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := writeFile(t, "empty.docx", buf.Bytes())
	_, err = New().ExtractText(context.Background(), path)
	require.Error(t, err)
}

func TestExtractTextUnsupported(t *testing.T) {
	path := writeFile(t, "sheet.xlsx", []byte("x"))
	_, err := New().ExtractText(context.Background(), path)
	require.ErrorIs(t, err, model.ErrUnsupportedType)
}

func TestExtractTextCanceled(t *testing.T) {
	path := writeFile(t, "a.txt", []byte("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().ExtractText(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", cleanText("  a \t\n b\x00  c "))
}
