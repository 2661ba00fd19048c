// Package textextract turns discovered documents into plain text.
package textextract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/ledongthuc/pdf"

	"docintake/internal/model"
)

// DefaultMaxBytes caps how much text is returned for one document.
const DefaultMaxBytes int64 = 8 << 20

const docxBody = "word/document.xml"

// Extractor implements model.TextExtractor for PDF, plain text and DOCX files.
type Extractor struct {
	// MaxBytes truncates returned text; zero means DefaultMaxBytes.
	MaxBytes int64
	Logger   *slog.Logger
}

var _ model.TextExtractor = (*Extractor)(nil)

func New() *Extractor {
	return &Extractor{MaxBytes: DefaultMaxBytes}
}

func (e *Extractor) logger() *slog.Logger {
	if e != nil && e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Extractor) maxBytes() int64 {
	if e == nil || e.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return e.MaxBytes
}

// ExtractText returns the text of the document at path. Unknown suffixes fail
// with an error wrapping model.ErrUnsupportedType.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		text, err = e.extractPDF(ctx, path)
	case ".txt", ".text", ".log", ".md", ".markdown":
		text, err = e.extractPlain(path)
	case ".docx":
		text, err = e.extractDOCX(path)
	default:
		return "", fmt.Errorf("%w: %q", model.ErrUnsupportedType, ext)
	}
	if err != nil {
		return "", err
	}
	return e.truncate(path, text), nil
}

func (e *Extractor) truncate(path, text string) string {
	limit := e.maxBytes()
	if int64(len(text)) <= limit {
		return text
	}
	e.logger().Warn("truncating extracted text",
		"path", path,
		"size", humanize.IBytes(uint64(len(text))),
		"limit", humanize.IBytes(uint64(limit)))
	cut := int(limit)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func (e *Extractor) extractPlain(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open text file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, e.maxBytes()+1))
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	if int64(len(data)) > e.maxBytes() {
		data = data[:e.maxBytes()]
		for len(data) > 0 && !utf8.Valid(data) {
			data = data[:len(data)-1]
		}
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text file %s is not valid UTF-8", filepath.Base(path))
	}
	return string(data), nil
}

// extractPDF concatenates the plain text of every page, separated by blank
// lines. Pages that fail to decode are skipped.
func (e *Extractor) extractPDF(ctx context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not extract text from PDF %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	parts := make([]string, 0, r.NumPage())
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.logger().Debug("skipping unreadable PDF page", "path", path, "page", pageNum, "err", err)
			continue
		}
		parts = append(parts, pageText)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (e *Extractor) extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx as zip: %w", err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if file.Name != docxBody {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", docxBody, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, e.maxBytes()*4))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", docxBody, err)
		}
		return xmlText(data), nil
	}
	return "", fmt.Errorf("docx %s has no %s", filepath.Base(path), docxBody)
}

// xmlText collects the non-blank character data of an XML document.
func xmlText(data []byte) string {
	var text strings.Builder
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		chars, ok := token.(xml.CharData)
		if !ok || strings.TrimSpace(string(chars)) == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(cleanText(string(chars)))
	}
	return text.String()
}

// cleanText collapses whitespace runs and drops non-printable runes.
func cleanText(s string) string {
	var out strings.Builder
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				out.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsPrint(r):
			out.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(out.String())
}
