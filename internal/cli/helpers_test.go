package cli

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name string
	body string
}

// isolate runs the test in an empty directory with no DOCINTAKE_* env.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"DOCINTAKE_MAX_ARCHIVE_BYTES", "DOCINTAKE_MAX_MEMBERS", "DOCINTAKE_MAX_MEMBER_BYTES",
		"DOCINTAKE_MAX_DEPTH", "DOCINTAKE_DOCUMENT_TYPES", "DOCINTAKE_WORKSPACE_DIR",
		"DOCINTAKE_STATE_DIR", "DOCINTAKE_HISTORY", "DOCINTAKE_LISTEN", "DOCINTAKE_MAX_UPLOAD_BYTES",
		"DOCINTAKE_RATE_LIMIT_RPS", "DOCINTAKE_RATE_LIMIT_BURST", "DOCINTAKE_TRUSTED_PROXIES",
		"DOCINTAKE_TEXT_WORKERS", "DOCINTAKE_LOG_LEVEL", "DOCINTAKE_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
	return dir
}

// runCLI executes a fresh root command and returns stdout, stderr and the
// exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	code := execute(context.Background(), cmd, &stderr)
	return stdout.String(), stderr.String(), code
}

func writeZip(t *testing.T, path string, entries ...entry) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func writeTarGz(t *testing.T, path string, entries ...entry) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	require.Empty(t, names)
}
