package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"docintake/internal/model"
)

// Observer receives pipeline counters. internal/metrics provides a
// Prometheus-backed implementation.
type Observer interface {
	RunFinished(state model.PipelineState, errorKind string, elapsed time.Duration)
	MembersExtracted(n int)
	MemberSkipped()
	NestedArchive(extracted bool)
	DocumentsDiscovered(n int)
}

// Processor runs one archive-processing request end to end: detect,
// validate, extract, discover. Each call gets its own workspace so concurrent
// calls share no mutable state.
type Processor struct {
	limits        model.ExtractionLimits
	documentTypes []string
	workspaceDir  string
	logger        *slog.Logger
	recorder      model.RunRecorder
	observer      Observer
	now           func() time.Time
}

func NewProcessor(limits model.ExtractionLimits, documentTypes []string) *Processor {
	return &Processor{
		limits:        limits,
		documentTypes: NormalizeDocumentTypes(documentTypes),
		now:           time.Now,
	}
}

func (p *Processor) SetLogger(logger *slog.Logger) {
	p.logger = logger
}

// SetWorkspaceDir sets the parent directory for workspaces; empty means
// os.TempDir.
func (p *Processor) SetWorkspaceDir(dir string) {
	p.workspaceDir = dir
}

func (p *Processor) SetRecorder(recorder model.RunRecorder) {
	p.recorder = recorder
}

func (p *Processor) SetObserver(observer Observer) {
	p.observer = observer
}

func (p *Processor) Limits() model.ExtractionLimits {
	return p.limits
}

func (p *Processor) DocumentTypes() []string {
	return append([]string(nil), p.documentTypes...)
}

func (p *Processor) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// Result is the outcome of a successful Process call. The workspace stays on
// disk until Release is called.
type Result struct {
	RunID     string
	Archive   model.ArchiveHandle
	Workspace *Workspace
	SizeBytes int64
	// SHA256 is the hex digest of the archive file.
	SHA256    string
	Extracted []model.ExtractedFile
	Documents []model.DiscoveredDocument

	processor  *Processor
	startedAt  time.Time
	states     []model.PipelineState
	failure    error
	once       sync.Once
	releaseErr error
}

// States returns the pipeline states entered so far, in order.
func (r *Result) States() []model.PipelineState {
	return append([]model.PipelineState(nil), r.states...)
}

// Release deletes the workspace and enters the terminal CleanedUp state. It
// runs at most once; later calls return the first call's error.
func (r *Result) Release() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		r.releaseErr = r.Workspace.Release()
		r.states = append(r.states, model.StateCleanedUp)
		if r.processor != nil {
			r.processor.finish(r)
		}
	})
	return r.releaseErr
}

func (r *Result) enter(state model.PipelineState) {
	r.states = append(r.states, state)
}

// Process handles the archive stored at archivePath whose original filename
// is originalName. On success the caller owns the returned Result and must
// call Release. On failure the workspace has already been released and the
// error is a *model.SecurityError, a *model.ExtractionError or an internal
// error.
func (p *Processor) Process(ctx context.Context, archivePath, originalName string) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Archive:   model.ArchiveHandle{Path: archivePath, Name: originalName},
		processor: p,
		startedAt: p.now(),
	}
	if res.Archive.Name == "" {
		res.Archive.Name = filepath.Base(archivePath)
	}
	res.enter(model.StateCreated)

	if err := p.run(ctx, res, archivePath, originalName); err != nil {
		res.failure = err
		res.enter(model.StateFailed)
		p.log().Warn("archive processing failed",
			"run_id", res.RunID,
			"archive", originalName,
			"kind", model.ErrorKind(err),
			"err", err)
		if releaseErr := res.Release(); releaseErr != nil {
			p.log().Error("workspace cleanup failed", "run_id", res.RunID, "err", releaseErr)
		}
		return nil, err
	}
	res.enter(model.StateCompleted)
	return res, nil
}

// ProcessWith runs Process, hands the result to fn and always releases the
// workspace afterwards. fn may be nil.
func (p *Processor) ProcessWith(ctx context.Context, archivePath, originalName string, fn func(*Result) error) (err error) {
	res, err := p.Process(ctx, archivePath, originalName)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := res.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	if fn == nil {
		return nil
	}
	return fn(res)
}

func (p *Processor) run(ctx context.Context, res *Result, archivePath, originalName string) error {
	if err := p.limits.Validate(); err != nil {
		return fmt.Errorf("invalid extraction limits: %w", err)
	}
	handle, err := OpenArchive(archivePath, originalName)
	if err != nil {
		return err
	}
	res.Archive = handle

	ws, err := AcquireWorkspace(p.workspaceDir)
	if err != nil {
		return err
	}
	res.Workspace = ws
	p.log().Info("created extraction workspace", "run_id", res.RunID, "workspace", ws.Root())

	size, err := ValidateArchiveSize(handle, p.limits)
	res.SizeBytes = size
	if err != nil {
		return err
	}
	res.enter(model.StateSizeValidated)
	if res.SHA256, err = ArchiveDigest(handle.Path); err != nil {
		return &model.ExtractionError{Kind: model.ExtractionIO, Message: err.Error(), Cause: err}
	}

	members, err := validateMembers(handle, p.limits)
	if err != nil {
		return err
	}
	res.enter(model.StateMembersEnumerated)

	if err := ctx.Err(); err != nil {
		return err
	}
	res.enter(model.StateExtracting)
	extractor := Extractor{Limits: p.limits, Logger: p.logger, OnSkip: p.onSkip}
	files, err := extractor.extractMembers(handle, ws.Root(), members)
	if err != nil {
		return err
	}
	res.Extracted = files
	res.enter(model.StateExtracted)
	if p.observer != nil {
		p.observer.MembersExtracted(len(files))
	}

	res.enter(model.StateDiscoveringDocuments)
	docs, err := DiscoverDocuments(ctx, ws.Root(), DiscoverOptions{
		Limits:        p.limits,
		DocumentTypes: p.documentTypes,
		Logger:        p.logger,
		OnSkip:        p.onSkip,
		OnNestedArchive: func(_ string, _ int, extracted bool) {
			if p.observer != nil {
				p.observer.NestedArchive(extracted)
			}
		},
	})
	if err != nil {
		return err
	}
	for i := range docs {
		if docs[i].SourceArchive == "" {
			docs[i].SourceArchive = handle.Name
		}
	}
	res.Documents = docs
	if p.observer != nil {
		p.observer.DocumentsDiscovered(len(docs))
	}
	if len(docs) == 0 {
		p.log().Warn("no supported files found in archive", "run_id", res.RunID, "archive", handle.Name)
	} else {
		p.log().Info("found supported files in archive", "run_id", res.RunID, "archive", handle.Name, "documents", len(docs))
	}
	return nil
}

func (p *Processor) onSkip(string, int64) {
	if p.observer != nil {
		p.observer.MemberSkipped()
	}
}

// finish reports the run once it reached CleanedUp.
func (p *Processor) finish(res *Result) {
	final := model.StateCompleted
	if res.failure != nil {
		final = model.StateFailed
	}
	elapsed := p.now().Sub(res.startedAt)
	if p.observer != nil {
		p.observer.RunFinished(final, model.ErrorKind(res.failure), elapsed)
	}
	if p.recorder == nil {
		return
	}

	record := model.RunRecord{
		RunID:          res.RunID,
		ArchiveName:    res.Archive.Name,
		Format:         res.Archive.Format,
		SizeBytes:      res.SizeBytes,
		SHA256:         res.SHA256,
		FinalState:     final,
		ExtractedCount: len(res.Extracted),
		DocumentCount:  len(res.Documents),
		ErrorKind:      model.ErrorKind(res.failure),
		StartedAt:      res.startedAt,
		FinishedAt:     res.startedAt.Add(elapsed),
	}
	if res.failure != nil {
		record.ErrorMessage = res.failure.Error()
	}
	for _, d := range res.Documents {
		record.Documents = append(record.Documents, d.RelPath)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.recorder.RecordRun(ctx, record); err != nil {
		p.log().Warn("record run failed", "run_id", res.RunID, "err", err)
	}
}
