package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintake/internal/model"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st := NewSQLiteStore(filepath.Join(t.TempDir(), "state", "runs.sqlite"))
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleRun(id string, started time.Time) model.RunRecord {
	return model.RunRecord{
		RunID:          id,
		ArchiveName:    id + ".zip",
		Format:         model.FormatZip,
		SizeBytes:      2048,
		SHA256:         "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		FinalState:     model.StateCompleted,
		ExtractedCount: 3,
		DocumentCount:  2,
		StartedAt:      started,
		FinishedAt:     started.Add(150 * time.Millisecond),
		Documents:      []string{"b.pdf", "a.txt"},
	}
}

func TestSQLiteStore_RecordAndGetRun(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := sampleRun("run-1", started)
	require.NoError(t, st.RecordRun(ctx, run))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	docs, err := st.RunDocuments(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf", "a.txt"}, docs)
}

func TestSQLiteStore_RecordRunReplacesDocuments(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	run := sampleRun("run-1", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, st.RecordRun(ctx, run))

	run.Documents = []string{"only.pdf"}
	run.DocumentCount = 1
	require.NoError(t, st.RecordRun(ctx, run))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"only.pdf"}, got.Documents)
	assert.Equal(t, 1, got.DocumentCount)
}

func TestSQLiteStore_FailedRun(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	run := model.RunRecord{
		RunID:        "run-bad",
		ArchiveName:  "evil.zip",
		Format:       model.FormatZip,
		FinalState:   model.StateFailed,
		ErrorKind:    "security",
		ErrorMessage: "path_traversal: path traversal detected",
		StartedAt:    time.Now().UTC().Truncate(time.Millisecond),
		FinishedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, st.RecordRun(ctx, run))

	got, err := st.GetRun(ctx, "run-bad")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, got.FinalState)
	assert.Equal(t, "security", got.ErrorKind)
	assert.Empty(t, got.Documents)
}

func TestSQLiteStore_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.RecordRun(ctx, sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := st.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-4", runs[0].RunID)
	assert.Equal(t, "run-3", runs[1].RunID)
	assert.Nil(t, runs[0].Documents)

	runs, err = st.ListRuns(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, "run-0", runs[1].RunID)

	counts, err := st.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.PipelineState]int64{model.StateCompleted: 5}, counts)
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	st := newStore(t)
	_, err := st.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLiteStore_RecordRunRequiresID(t *testing.T) {
	st := newStore(t)
	err := st.RecordRun(context.Background(), model.RunRecord{ArchiveName: "a.zip"})
	require.Error(t, err)
}

func TestSQLiteStore_LazyInitAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.sqlite")

	st := NewSQLiteStore(path)
	require.NoError(t, st.RecordRun(ctx, sampleRun("run-1", time.Now().UTC().Truncate(time.Millisecond))))
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	reopened := NewSQLiteStore(path)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1.zip", got.ArchiveName)
}

func TestSQLiteStore_ConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.RecordRun(ctx, sampleRun(fmt.Sprintf("run-%02d", i), time.Now().UTC()))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, 100, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 16)
}
