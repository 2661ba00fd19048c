package ingest

import (
	"archive/tar"
	"errors"
	"io"

	"docintake/internal/model"
)

// extractTar validates containment and layout against the header listing
// taken by the count check, then makes one pass over the stream writing the
// accepted payloads. Only regular files are materialised; links, devices and
// fifos are skipped.
func (e Extractor) extractTar(handle model.ArchiveHandle, root string, headers []Member) ([]model.ExtractedFile, error) {
	if err := checkMemberCount(handle, len(headers), e.Limits); err != nil {
		return nil, err
	}

	targets := make(map[int]string, len(headers))
	layout := make([]plannedTarget, 0, len(headers))
	for i, m := range headers {
		if m.Kind != MemberFile {
			if m.Kind == MemberSpecial {
				e.logger().Debug("skipping non-regular tar member", "archive", handle.Name, "member", m.Name)
			}
			continue
		}
		target, err := MemberTarget(root, m.Name)
		if err != nil {
			return nil, err
		}
		targets[i] = target
		layout = append(layout, plannedTarget{member: m.Name, target: target})
	}
	if err := checkLayout(handle, "TAR", root, layout); err != nil {
		return nil, err
	}

	files := make([]model.ExtractedFile, 0, len(targets))
	index := -1
	err := scanTar(handle, func(hdr *tar.Header, payload io.Reader) (bool, error) {
		index++
		if index >= len(headers) {
			return false, nil
		}
		target, ok := targets[index]
		if !ok || hdr.Name != headers[index].Name {
			return true, nil
		}
		if e.oversized(handle, hdr.Name, hdr.Size) {
			return true, nil
		}
		n, err := writeMember(target, payload, e.Limits.MaxMemberBytes)
		if errors.Is(err, errMemberTooLarge) {
			e.oversized(handle, hdr.Name, e.Limits.MaxMemberBytes+1)
			return true, nil
		}
		if err != nil {
			return false, memberWriteError(handle, "TAR", hdr.Name, err)
		}
		files = append(files, model.ExtractedFile{Path: target, MemberName: hdr.Name, Size: n})
		e.logger().Debug("extracted member", "archive", handle.Name, "member", hdr.Name)
		return true, nil
	})
	if err != nil {
		return files, err
	}
	return files, nil
}
