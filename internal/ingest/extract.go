package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"docintake/internal/model"
)

// Extractor materialises archive members into a workspace directory under a
// fixed set of limits. Structural violations (member count, containment,
// corrupt data) abort the whole call; an oversized member is logged and
// skipped.
type Extractor struct {
	Limits model.ExtractionLimits
	Logger *slog.Logger
	// OnSkip, if non-nil, is called for every member skipped for size.
	OnSkip func(member string, size int64)
}

// ExtractArchive validates handle against limits and extracts it into root.
func ExtractArchive(handle model.ArchiveHandle, root string, limits model.ExtractionLimits) ([]model.ExtractedFile, error) {
	return Extractor{Limits: limits}.Extract(handle, root)
}

// Extract validates the archive bounds and then runs the format-specific
// extractor over the member listing produced by the count check.
func (e Extractor) Extract(handle model.ArchiveHandle, root string) ([]model.ExtractedFile, error) {
	if _, err := ValidateArchiveSize(handle, e.Limits); err != nil {
		return nil, err
	}
	members, err := validateMembers(handle, e.Limits)
	if err != nil {
		return nil, err
	}
	return e.extractMembers(handle, root, members)
}

// extractMembers writes the archive into root. For TAR streams members must
// be the validated header listing; ZIP reads its own central directory.
func (e Extractor) extractMembers(handle model.ArchiveHandle, root string, members []Member) ([]model.ExtractedFile, error) {
	var (
		files []model.ExtractedFile
		err   error
	)
	switch handle.Format {
	case model.FormatZip:
		files, err = e.extractZip(handle, root)
	case model.FormatTar, model.FormatTarGz:
		files, err = e.extractTar(handle, root, members)
	default:
		return nil, unsupportedFormat(handle)
	}
	if err != nil {
		removeExtracted(files)
		return nil, err
	}
	e.logger().Info("archive extracted", "archive", handle.Name, "format", string(handle.Format), "files", len(files))
	return files, nil
}

func (e Extractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// oversized reports whether a declared member size breaks the per-file limit
// and logs the skip when it does.
func (e Extractor) oversized(handle model.ArchiveHandle, member string, size int64) bool {
	if size <= e.Limits.MaxMemberBytes {
		return false
	}
	e.logger().Warn("skipping large archive member",
		"archive", handle.Name,
		"member", member,
		"size", humanize.IBytes(uint64(size)),
		"limit", humanize.IBytes(uint64(e.Limits.MaxMemberBytes)))
	if e.OnSkip != nil {
		e.OnSkip(member, size)
	}
	return true
}

var errMemberTooLarge = errors.New("member exceeds size limit")

// writeMember copies at most limit bytes of src into target. A payload longer
// than limit removes the partial file and returns errMemberTooLarge.
func writeMember(target string, src io.Reader, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return 0, fmt.Errorf("create member directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create member file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(src, limit+1))
	closeErr := f.Close()
	if copyErr == nil && n > limit {
		copyErr = errMemberTooLarge
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(target)
		return 0, copyErr
	}
	return n, nil
}

// memberWriteError separates local filesystem failures from payloads that
// fail to decode. A path that is a file where a directory is needed, or the
// reverse, comes from the archive layout and counts as corrupt.
func memberWriteError(handle model.ArchiveHandle, format, member string, err error) error {
	if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EISDIR) {
		return &model.ExtractionError{
			Kind:    model.ExtractionCorrupt,
			Message: fmt.Sprintf("invalid %s archive %s: member %s conflicts with another member's path", format, handle.Name, member),
			Cause:   err,
		}
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return &model.ExtractionError{
			Kind:    model.ExtractionIO,
			Message: fmt.Sprintf("write member %s of %s: %v", member, handle.Name, err),
			Cause:   err,
		}
	}
	return &model.ExtractionError{
		Kind:    model.ExtractionCorrupt,
		Message: fmt.Sprintf("invalid %s archive %s: member %s: %v", format, handle.Name, member, err),
		Cause:   err,
	}
}

type plannedTarget struct {
	member string
	target string
}

// checkLayout rejects a plan in which a file target is also an ancestor
// directory of another target, such as members "a" and "a/b.txt".
func checkLayout(handle model.ArchiveHandle, format, root string, plan []plannedTarget) error {
	root = filepath.Clean(root)
	owners := make(map[string]string, len(plan))
	for _, p := range plan {
		owners[p.target] = p.member
	}
	for _, p := range plan {
		for dir := filepath.Dir(p.target); len(dir) > len(root); dir = filepath.Dir(dir) {
			owner, ok := owners[dir]
			if !ok {
				continue
			}
			return &model.ExtractionError{
				Kind: model.ExtractionCorrupt,
				Message: fmt.Sprintf("invalid %s archive %s: member %s needs %s as a directory but it is a file",
					format, handle.Name, p.member, owner),
			}
		}
	}
	return nil
}

func removeExtracted(files []model.ExtractedFile) {
	for _, f := range files {
		_ = os.Remove(f.Path)
	}
}
