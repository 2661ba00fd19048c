package ingest

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"docintake/internal/model"
)

// MemberKind classifies an archive directory entry.
type MemberKind string

const (
	MemberFile    MemberKind = "file"
	MemberDir     MemberKind = "dir"
	MemberSpecial MemberKind = "special"
)

// Member is one entry of an archive's central directory or header list.
type Member struct {
	Name string     `json:"name"`
	Size int64      `json:"size_bytes"`
	Kind MemberKind `json:"kind"`
}

// ListMembers enumerates the archive's member directory without
// materialising any payload.
func ListMembers(handle model.ArchiveHandle) ([]Member, error) {
	return listMembers(handle, 0)
}

// listMembers stops reading once more than stopAfter entries were seen when
// stopAfter is positive; the returned slice then has stopAfter+1 entries.
func listMembers(handle model.ArchiveHandle, stopAfter int) ([]Member, error) {
	switch handle.Format {
	case model.FormatZip:
		r, err := openZip(handle)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		members := make([]Member, 0, len(r.File))
		for _, f := range r.File {
			members = append(members, zipMember(f))
			if stopAfter > 0 && len(members) > stopAfter {
				break
			}
		}
		return members, nil
	case model.FormatTar, model.FormatTarGz:
		var members []Member
		err := scanTar(handle, func(hdr *tar.Header, _ io.Reader) (bool, error) {
			members = append(members, tarMember(hdr))
			return stopAfter <= 0 || len(members) <= stopAfter, nil
		})
		if err != nil {
			return nil, err
		}
		return members, nil
	default:
		return nil, unsupportedFormat(handle)
	}
}

func zipMember(f *zip.File) Member {
	kind := MemberFile
	if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
		kind = MemberDir
	}
	return Member{Name: f.Name, Size: int64(f.UncompressedSize64), Kind: kind}
}

func tarMember(hdr *tar.Header) Member {
	kind := MemberSpecial
	switch hdr.Typeflag {
	case tar.TypeReg:
		kind = MemberFile
	case tar.TypeDir:
		kind = MemberDir
	}
	return Member{Name: hdr.Name, Size: hdr.Size, Kind: kind}
}

func openZip(handle model.ArchiveHandle) (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(handle.Path)
	if errors.Is(err, zip.ErrInsecurePath) && r != nil {
		// Non-local names are rejected per member by MemberTarget.
		return r, nil
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, &model.ExtractionError{
				Kind:    model.ExtractionIO,
				Message: fmt.Sprintf("open %s: %v", handle.Name, err),
				Cause:   err,
			}
		}
		return nil, &model.ExtractionError{
			Kind:    model.ExtractionCorrupt,
			Message: fmt.Sprintf("invalid ZIP archive %s: %v", handle.Name, err),
			Cause:   err,
		}
	}
	return r, nil
}

// scanTar walks every header of a tar or tar.gz archive. visit receives the
// header and a reader positioned at its payload; returning false stops the
// scan early.
func scanTar(handle model.ArchiveHandle, visit func(hdr *tar.Header, payload io.Reader) (bool, error)) error {
	f, err := os.Open(handle.Path)
	if err != nil {
		return &model.ExtractionError{
			Kind:    model.ExtractionIO,
			Message: fmt.Sprintf("open %s: %v", handle.Name, err),
			Cause:   err,
		}
	}
	defer f.Close()

	var rd io.Reader = f
	if handle.Format == model.FormatTarGz {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return &model.ExtractionError{
				Kind:    model.ExtractionCorrupt,
				Message: fmt.Sprintf("invalid TAR archive %s: gzip stream: %v", handle.Name, err),
				Cause:   err,
			}
		}
		defer gr.Close()
		rd = gr
	}

	tr := tar.NewReader(rd)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) && hdr != nil {
			err = nil
		}
		if err != nil {
			return &model.ExtractionError{
				Kind:    model.ExtractionCorrupt,
				Message: fmt.Sprintf("invalid TAR archive %s: %v", handle.Name, err),
				Cause:   err,
			}
		}
		more, err := visit(hdr, tr)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func unsupportedFormat(handle model.ArchiveHandle) error {
	return &model.ExtractionError{
		Kind:    model.ExtractionUnsupported,
		Message: fmt.Sprintf("unsupported archive format: %s", handle.Name),
	}
}
