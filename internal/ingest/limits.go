package ingest

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"docintake/internal/model"
)

// ValidateArchive enforces the archive-level bounds before any member payload
// is decompressed: on-disk size first, then member count.
func ValidateArchive(handle model.ArchiveHandle, limits model.ExtractionLimits) error {
	if _, err := ValidateArchiveSize(handle, limits); err != nil {
		return err
	}
	_, err := ValidateMemberCount(handle, limits)
	return err
}

// ValidateArchiveSize stats the archive and rejects it when it exceeds
// limits.MaxArchiveBytes. The archive is not opened.
func ValidateArchiveSize(handle model.ArchiveHandle, limits model.ExtractionLimits) (int64, error) {
	info, err := os.Stat(handle.Path)
	if err != nil {
		return 0, &model.ExtractionError{
			Kind:    model.ExtractionIO,
			Message: fmt.Sprintf("stat %s: %v", handle.Name, err),
			Cause:   err,
		}
	}
	if !info.Mode().IsRegular() {
		return 0, &model.ExtractionError{
			Kind:    model.ExtractionIO,
			Message: fmt.Sprintf("%s is not a regular file", handle.Name),
		}
	}
	size := info.Size()
	if size > limits.MaxArchiveBytes {
		return size, &model.SecurityError{
			Kind: model.SecurityArchiveTooLarge,
			Message: fmt.Sprintf("archive too large: %s exceeds %s limit",
				humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limits.MaxArchiveBytes))),
			Path: handle.Name,
		}
	}
	return size, nil
}

// ValidateMemberCount reads only the member directory and rejects archives
// with more than limits.MaxMembers entries.
func ValidateMemberCount(handle model.ArchiveHandle, limits model.ExtractionLimits) (int, error) {
	members, err := validateMembers(handle, limits)
	return len(members), err
}

// validateMembers is ValidateMemberCount keeping the listing, so a TAR stream
// is not decompressed again just to reread its headers.
func validateMembers(handle model.ArchiveHandle, limits model.ExtractionLimits) ([]Member, error) {
	members, err := listMembers(handle, limits.MaxMembers)
	if err != nil {
		return nil, err
	}
	if err := checkMemberCount(handle, len(members), limits); err != nil {
		return members, err
	}
	return members, nil
}

func checkMemberCount(handle model.ArchiveHandle, count int, limits model.ExtractionLimits) error {
	if count <= limits.MaxMembers {
		return nil
	}
	return &model.SecurityError{
		Kind:    model.SecurityTooManyMembers,
		Message: fmt.Sprintf("too many files in archive: %s exceeds the %d member limit", handle.Name, limits.MaxMembers),
		Path:    handle.Name,
	}
}
