package model

import "errors"

var (
	// ErrSecurity is matched by every *SecurityError via errors.Is.
	ErrSecurity = errors.New("security validation failed")
	// ErrExtraction is matched by every *ExtractionError via errors.Is.
	ErrExtraction = errors.New("archive extraction failed")
	// ErrUnsupportedType is returned by text extractors for unknown document types.
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrNotFound        = errors.New("not found")
)

const (
	SecurityArchiveTooLarge = "archive_too_large"
	SecurityTooManyMembers  = "too_many_members"
	SecurityPathTraversal   = "path_traversal"

	ExtractionCorrupt     = "corrupt_archive"
	ExtractionUnsupported = "unsupported_format"
	ExtractionIO          = "io"
)

// SecurityError reports malicious or over-limit input.
type SecurityError struct {
	Kind    string
	Message string
	Path    string
}

func (e *SecurityError) Error() string {
	if e == nil {
		return ""
	}
	return e.Kind + ": " + e.Message
}

func (e *SecurityError) Is(target error) bool {
	return target == ErrSecurity
}

// ExtractionError reports bad input: corrupt bytes or an unsupported format.
type ExtractionError struct {
	Kind    string
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e == nil {
		return ""
	}
	return e.Kind + ": " + e.Message
}

func (e *ExtractionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

// ErrorKind classifies err for transports: "security", "extraction" or
// "internal". A nil error yields "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSecurity):
		return "security"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	default:
		return "internal"
	}
}
