package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"docintake/internal/model"
)

// SQLiteStore keeps the history of processing runs and the documents each
// run discovered.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

var _ model.RunStore = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// single writer; concurrent runs serialise their inserts here
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  archive_name TEXT NOT NULL,
  format TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  sha256 TEXT NOT NULL DEFAULT '',
  final_state TEXT NOT NULL,
  extracted_count INTEGER NOT NULL DEFAULT 0,
  document_count INTEGER NOT NULL DEFAULT 0,
  error_kind TEXT NOT NULL DEFAULT '',
  error_message TEXT NOT NULL DEFAULT '',
  started_unix_ms INTEGER NOT NULL,
  finished_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_documents (
  run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  rel_path TEXT NOT NULL,
  PRIMARY KEY (run_id, position)
);

-- history listings are newest first
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_unix_ms DESC);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// RecordRun inserts or replaces the run and its document list.
func (s *SQLiteStore) RecordRun(ctx context.Context, run model.RunRecord) error {
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("run id is required")
	}
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO runs(run_id, archive_name, format, size_bytes, sha256, final_state, extracted_count, document_count, error_kind, error_message, started_unix_ms, finished_unix_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   archive_name=excluded.archive_name,
		   format=excluded.format,
		   size_bytes=excluded.size_bytes,
		   sha256=excluded.sha256,
		   final_state=excluded.final_state,
		   extracted_count=excluded.extracted_count,
		   document_count=excluded.document_count,
		   error_kind=excluded.error_kind,
		   error_message=excluded.error_message,
		   started_unix_ms=excluded.started_unix_ms,
		   finished_unix_ms=excluded.finished_unix_ms`,
		run.RunID,
		run.ArchiveName,
		string(run.Format),
		run.SizeBytes,
		run.SHA256,
		string(run.FinalState),
		run.ExtractedCount,
		run.DocumentCount,
		run.ErrorKind,
		run.ErrorMessage,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_documents WHERE run_id = ?`, run.RunID); err != nil {
		return err
	}
	if len(run.Documents) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_documents(run_id, position, rel_path) VALUES(?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		for i, rel := range run.Documents {
			if _, err := stmt.ExecContext(ctx, run.RunID, i, rel); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// ListRuns returns runs newest first. Documents are not loaded; use GetRun.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]model.RunRecord, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.QueryContext(ctx, selectRuns+` ORDER BY started_unix_ms DESC, run_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	runs := make([]model.RunRecord, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its documents, or an error wrapping
// model.ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (model.RunRecord, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return model.RunRecord{}, err
	}

	run, err := scanRun(db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	if err != nil {
		return model.RunRecord{}, err
	}

	run.Documents, err = s.RunDocuments(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

// RunDocuments returns the relative paths of the documents a run discovered,
// in discovery order.
func (s *SQLiteStore) RunDocuments(ctx context.Context, runID string) ([]string, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT rel_path FROM run_documents WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []string
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			return nil, err
		}
		docs = append(docs, rel)
	}
	return docs, rows.Err()
}

// CountRuns returns the number of recorded runs grouped by final state.
func (s *SQLiteStore) CountRuns(ctx context.Context) (map[model.PipelineState]int64, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT final_state, COUNT(*) FROM runs GROUP BY final_state`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[model.PipelineState]int64{}
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[model.PipelineState(state)] = n
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) ensureDB(ctx context.Context) (*sql.DB, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("sqlite db not initialized")
	}
	return s.db, nil
}

const selectRuns = `SELECT run_id, archive_name, format, size_bytes, sha256, final_state, extracted_count, document_count, error_kind, error_message, started_unix_ms, finished_unix_ms FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.RunRecord, error) {
	var (
		run        model.RunRecord
		format     string
		state      string
		startedMS  int64
		finishedMS int64
	)
	if err := row.Scan(
		&run.RunID,
		&run.ArchiveName,
		&format,
		&run.SizeBytes,
		&run.SHA256,
		&state,
		&run.ExtractedCount,
		&run.DocumentCount,
		&run.ErrorKind,
		&run.ErrorMessage,
		&startedMS,
		&finishedMS,
	); err != nil {
		return model.RunRecord{}, err
	}
	run.Format = model.ArchiveFormat(format)
	run.FinalState = model.PipelineState(state)
	run.StartedAt = time.UnixMilli(startedMS).UTC()
	run.FinishedAt = time.UnixMilli(finishedMS).UTC()
	return run, nil
}
