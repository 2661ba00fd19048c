package model

import "context"

// TextExtractor returns the textual content of a discovered document or fails
// with an error wrapping ErrUnsupportedType.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// RunRecorder persists run summaries. Recording failures never fail a run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

type RunStore interface {
	RunRecorder
	Init(ctx context.Context) error
	ListRuns(ctx context.Context, limit, offset int) ([]RunRecord, error)
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	Close() error
}
