package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"docintake/internal/model"
)

// archiveSuffixes maps single suffixes to formats. The two-part ".tar.gz"
// suffix is checked separately since filepath.Ext only sees ".gz".
var archiveSuffixes = map[string]model.ArchiveFormat{
	".zip": model.FormatZip,
	".tar": model.FormatTar,
	".tgz": model.FormatTarGz,
}

// DetectFormat returns the archive format for name based on its suffix,
// case-insensitively. It performs no I/O.
func DetectFormat(name string) (model.ArchiveFormat, bool) {
	base := strings.ToLower(filepath.Base(strings.TrimSpace(name)))
	if base == "" || base == "." {
		return "", false
	}
	if strings.HasSuffix(base, ".tar.gz") {
		return model.FormatTarGz, true
	}
	format, ok := archiveSuffixes[filepath.Ext(base)]
	return format, ok
}

// IsArchive reports whether name carries a supported archive suffix.
func IsArchive(name string) bool {
	_, ok := DetectFormat(name)
	return ok
}

// OpenArchive builds a handle for the archive stored at path. originalName is
// the caller-supplied filename used for format detection; when empty the
// base name of path is used.
func OpenArchive(path, originalName string) (model.ArchiveHandle, error) {
	name := strings.TrimSpace(originalName)
	if name == "" {
		name = filepath.Base(path)
	}
	format, ok := DetectFormat(name)
	if !ok {
		return model.ArchiveHandle{}, &model.ExtractionError{
			Kind:    model.ExtractionUnsupported,
			Message: fmt.Sprintf("unsupported archive format: %s", name),
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return model.ArchiveHandle{}, fmt.Errorf("resolve archive path: %w", err)
	}
	return model.ArchiveHandle{Path: absPath, Name: name, Format: format}, nil
}
