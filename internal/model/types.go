package model

import (
	"fmt"
	"time"
)

const (
	defaultMaxArchiveBytes int64 = 50 * 1024 * 1024
	defaultMaxMembers            = 100
	defaultMaxMemberBytes  int64 = 10 * 1024 * 1024
	defaultMaxDepth              = 1
)

// ExtractionLimits bounds every resource dimension of one archive request.
// Values are copied into each call and never mutated mid-extraction.
type ExtractionLimits struct {
	MaxArchiveBytes int64 `yaml:"max_archive_bytes" toml:"max_archive_bytes" json:"max_archive_bytes"`
	MaxMembers      int   `yaml:"max_members" toml:"max_members" json:"max_members"`
	MaxMemberBytes  int64 `yaml:"max_member_bytes" toml:"max_member_bytes" json:"max_member_bytes"`
	MaxDepth        int   `yaml:"max_depth" toml:"max_depth" json:"max_depth"`
}

// DefaultLimits returns 50 MiB archives, 100 members, 10 MiB members and one
// level of archive-within-archive nesting.
func DefaultLimits() ExtractionLimits {
	return ExtractionLimits{
		MaxArchiveBytes: defaultMaxArchiveBytes,
		MaxMembers:      defaultMaxMembers,
		MaxMemberBytes:  defaultMaxMemberBytes,
		MaxDepth:        defaultMaxDepth,
	}
}

func (l ExtractionLimits) Validate() error {
	switch {
	case l.MaxArchiveBytes <= 0:
		return fmt.Errorf("max archive bytes must be positive, got %d", l.MaxArchiveBytes)
	case l.MaxMembers <= 0:
		return fmt.Errorf("max members must be positive, got %d", l.MaxMembers)
	case l.MaxMemberBytes <= 0:
		return fmt.Errorf("max member bytes must be positive, got %d", l.MaxMemberBytes)
	case l.MaxDepth < 0:
		return fmt.Errorf("max depth must not be negative, got %d", l.MaxDepth)
	}
	return nil
}

type ArchiveFormat string

const (
	FormatZip   ArchiveFormat = "zip"
	FormatTar   ArchiveFormat = "tar"
	FormatTarGz ArchiveFormat = "tar.gz"
)

// ArchiveHandle is a resolved archive path plus the format detected from its
// original filename. Name may differ from filepath.Base(Path) for uploads.
type ArchiveHandle struct {
	Path   string
	Name   string
	Format ArchiveFormat
}

// ExtractedFile is one archive member materialised inside a workspace.
type ExtractedFile struct {
	Path       string `json:"path"`
	MemberName string `json:"member_name"`
	Size       int64  `json:"size_bytes"`
}

// DiscoveredDocument is a terminal leaf of discovery.
type DiscoveredDocument struct {
	Path    string `json:"path"`
	RelPath string `json:"rel_path"`
	DocType string `json:"doc_type"`
	// Depth counts archive-within-archive levels; directories do not add to it.
	Depth         int    `json:"depth"`
	SourceArchive string `json:"source_archive,omitempty"`
}

// EntryKind tags a directory entry seen during discovery.
type EntryKind int

const (
	EntryIgnored EntryKind = iota
	EntryDocument
	EntryNestedArchive
	EntryDirectory
)

func (k EntryKind) String() string {
	switch k {
	case EntryDocument:
		return "document"
	case EntryNestedArchive:
		return "nested_archive"
	case EntryDirectory:
		return "directory"
	default:
		return "ignored"
	}
}

type PipelineState string

const (
	StateCreated              PipelineState = "created"
	StateSizeValidated        PipelineState = "size_validated"
	StateMembersEnumerated    PipelineState = "members_enumerated"
	StateExtracting           PipelineState = "extracting"
	StateExtracted            PipelineState = "extracted"
	StateDiscoveringDocuments PipelineState = "discovering_documents"
	StateCompleted            PipelineState = "completed"
	StateFailed               PipelineState = "failed"
	StateCleanedUp            PipelineState = "cleaned_up"
)

// RunRecord summarises one archive-processing request for the history store.
type RunRecord struct {
	RunID          string        `json:"run_id"`
	ArchiveName    string        `json:"archive_name"`
	Format         ArchiveFormat `json:"format,omitempty"`
	SizeBytes      int64         `json:"size_bytes"`
	SHA256         string        `json:"sha256,omitempty"`
	FinalState     PipelineState `json:"final_state"`
	ExtractedCount int           `json:"extracted_count"`
	DocumentCount  int           `json:"document_count"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Documents      []string      `json:"documents,omitempty"`
}
