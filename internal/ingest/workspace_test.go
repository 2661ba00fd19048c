package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceLifecycle(t *testing.T) {
	base := t.TempDir()
	ws, err := AcquireWorkspace(base)
	require.NoError(t, err)

	info, err := os.Stat(ws.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Root()), "docintake-"))

	writeFile(t, filepath.Join(ws.Root(), "a", "b", "c.txt"), "c")

	require.NoError(t, ws.Release())
	assert.NoDirExists(t, ws.Root())
	require.NoError(t, ws.Release(), "second release must be a no-op")
}

func TestWorkspacesAreDistinct(t *testing.T) {
	base := t.TempDir()
	a, err := AcquireWorkspace(base)
	require.NoError(t, err)
	b, err := AcquireWorkspace(base)
	require.NoError(t, err)
	defer a.Release()
	defer b.Release()

	assert.NotEqual(t, a.Root(), b.Root())
}

func TestWorkspaceCreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "base")
	ws, err := AcquireWorkspace(base)
	require.NoError(t, err)
	defer ws.Release()
	assert.DirExists(t, base)
}

func TestWorkspaceReleaseNil(t *testing.T) {
	var ws *Workspace
	assert.NoError(t, ws.Release())
	assert.Empty(t, ws.Root())
}

func TestWorkspaceReleaseAfterExternalRemoval(t *testing.T) {
	ws, err := AcquireWorkspace(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(ws.Root()))
	assert.NoError(t, ws.Release())
}

func TestWorkspaceReleaseRestoresPermissions(t *testing.T) {
	ws, err := AcquireWorkspace(t.TempDir())
	require.NoError(t, err)
	locked := filepath.Join(ws.Root(), "locked")
	writeFile(t, filepath.Join(locked, "x.txt"), "x")
	require.NoError(t, os.Chmod(locked, 0o500))

	require.NoError(t, ws.Release())
	assert.NoDirExists(t, ws.Root())
}
