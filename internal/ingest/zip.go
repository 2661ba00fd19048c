package ingest

import (
	"archive/zip"
	"errors"
	"fmt"
	"math"

	"docintake/internal/model"
)

type plannedZipMember struct {
	file   *zip.File
	target string
}

// extractZip reads the central directory, proves every file member lands
// inside root, and only then writes payloads.
func (e Extractor) extractZip(handle model.ArchiveHandle, root string) ([]model.ExtractedFile, error) {
	r, err := openZip(handle)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := checkMemberCount(handle, len(r.File), e.Limits); err != nil {
		return nil, err
	}

	plan := make([]plannedZipMember, 0, len(r.File))
	layout := make([]plannedTarget, 0, len(r.File))
	for _, f := range r.File {
		if zipMember(f).Kind == MemberDir {
			continue
		}
		target, err := MemberTarget(root, f.Name)
		if err != nil {
			return nil, err
		}
		plan = append(plan, plannedZipMember{file: f, target: target})
		layout = append(layout, plannedTarget{member: f.Name, target: target})
	}
	if err := checkLayout(handle, "ZIP", root, layout); err != nil {
		return nil, err
	}

	files := make([]model.ExtractedFile, 0, len(plan))
	for _, m := range plan {
		declared := int64(math.MaxInt64)
		if m.file.UncompressedSize64 < math.MaxInt64 {
			declared = int64(m.file.UncompressedSize64)
		}
		if e.oversized(handle, m.file.Name, declared) {
			continue
		}
		n, err := e.writeZipMember(handle, m)
		if errors.Is(err, errMemberTooLarge) {
			e.oversized(handle, m.file.Name, e.Limits.MaxMemberBytes+1)
			continue
		}
		if err != nil {
			return files, err
		}
		files = append(files, model.ExtractedFile{Path: m.target, MemberName: m.file.Name, Size: n})
		e.logger().Debug("extracted member", "archive", handle.Name, "member", m.file.Name)
	}
	return files, nil
}

func (e Extractor) writeZipMember(handle model.ArchiveHandle, m plannedZipMember) (int64, error) {
	rc, err := m.file.Open()
	if err != nil {
		return 0, &model.ExtractionError{
			Kind:    model.ExtractionCorrupt,
			Message: fmt.Sprintf("invalid ZIP archive %s: member %s: %v", handle.Name, m.file.Name, err),
			Cause:   err,
		}
	}
	defer rc.Close()

	n, err := writeMember(m.target, rc, e.Limits.MaxMemberBytes)
	if err != nil && !errors.Is(err, errMemberTooLarge) {
		return 0, memberWriteError(handle, "ZIP", m.file.Name, err)
	}
	return n, err
}
