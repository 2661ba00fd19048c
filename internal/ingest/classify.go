package ingest

import (
	"path/filepath"
	"strings"
)

// DefaultDocumentTypes lists the suffixes collected by discovery unless the
// caller configures its own set.
var DefaultDocumentTypes = []string{".pdf", ".txt"}

// ClassifyDocType maps a path to a document type name.
func ClassifyDocType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return "pdf"
	case ".txt", ".text", ".log":
		return "text"
	case ".md", ".markdown":
		return "md"
	case ".docx":
		return "docx"
	case ".zip", ".tar", ".gz", ".tgz":
		return "archive"
	default:
		return "binary_ignored"
	}
}

// documentTypeSet normalises suffixes like "PDF", ".pdf" or " txt" into a
// lookup set. An empty input yields DefaultDocumentTypes.
func documentTypeSet(types []string) map[string]struct{} {
	if len(types) == 0 {
		types = DefaultDocumentTypes
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		set[t] = struct{}{}
	}
	return set
}

// NormalizeDocumentTypes returns the canonical, dotted form of types.
func NormalizeDocumentTypes(types []string) []string {
	set := documentTypeSet(types)
	out := make([]string, 0, len(set))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		if _, ok := set[t]; ok {
			out = append(out, t)
			delete(set, t)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultDocumentTypes...)
	}
	return out
}
