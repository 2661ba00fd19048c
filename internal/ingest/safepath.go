package ingest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"docintake/internal/model"
)

// ValidateTarget proves that candidate, once made absolute, cleaned and
// symlink-resolved, is a proper descendant of root.
func ValidateTarget(root, candidate string) error {
	rootCanon, err := canonicalPath(root)
	if err != nil {
		return &model.ExtractionError{
			Kind:    model.ExtractionIO,
			Message: fmt.Sprintf("resolve workspace root: %v", err),
			Cause:   err,
		}
	}
	candCanon, err := canonicalPath(candidate)
	if err != nil {
		return traversalError(candidate, err.Error())
	}
	if candCanon == rootCanon || !isWithinRoot(rootCanon, candCanon) {
		return traversalError(candidate, "attempts to escape extraction directory")
	}
	return nil
}

// MemberTarget computes root/member and validates its containment. Absolute
// member names are rejected outright rather than re-rooted.
func MemberTarget(root, member string) (string, error) {
	switch {
	case strings.TrimSpace(member) == "":
		return "", traversalError(member, "empty member name")
	case strings.ContainsRune(member, 0):
		return "", traversalError(member, "member name contains NUL byte")
	case path.IsAbs(member), filepath.IsAbs(member), filepath.VolumeName(member) != "":
		return "", traversalError(member, "absolute member path")
	}
	candidate := filepath.Join(root, filepath.FromSlash(member))
	if err := ValidateTarget(root, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

func traversalError(target, reason string) error {
	return &model.SecurityError{
		Kind:    model.SecurityPathTraversal,
		Message: fmt.Sprintf("path traversal detected: %s %s", target, reason),
		Path:    target,
	}
}

// canonicalPath resolves symlinks on the deepest existing ancestor of p and
// re-appends the components that do not exist yet.
func canonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	existing := filepath.Clean(abs)
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append(rest, filepath.Base(existing))
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(rest)+1)
	parts = append(parts, resolved)
	for i := len(rest) - 1; i >= 0; i-- {
		parts = append(parts, rest[i])
	}
	return filepath.Clean(filepath.Join(parts...)), nil
}

func isWithinRoot(rootResolved, candidate string) bool {
	rootResolved = filepath.Clean(rootResolved)
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(rootResolved, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return true
}
