package ingest

import (
	"archive/tar"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintake/internal/model"
)

func TestExtractZipSuccess(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "sample.zip", buildZip(t, map[string]string{
		"document.pdf": strings.Repeat("p", 1024),
		"notes.txt":    strings.Repeat("n", 1024),
	}))

	got, err := ExtractArchive(openHandle(t, path), root, testLimits())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.ExtractedFile{Path: filepath.Join(root, "document.pdf"), MemberName: "document.pdf", Size: 1024}, got[0])
	assert.Equal(t, model.ExtractedFile{Path: filepath.Join(root, "notes.txt"), MemberName: "notes.txt", Size: 1024}, got[1])
	assert.FileExists(t, filepath.Join(root, "document.pdf"))
	assert.FileExists(t, filepath.Join(root, "notes.txt"))
}

func TestExtractZipSkipsDirectoriesAndKeepsLayout(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "tree.zip", buildZip(t, map[string]string{
		"reports/":           "",
		"reports/q1/sum.txt": "q1",
	}))

	got, err := ExtractArchive(openHandle(t, path), root, testLimits())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"reports/q1/sum.txt"}, regularFiles(t, root))
}

func TestExtractZipCorrupted(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "bad.zip", []byte("this is not a zip file"))

	_, err := ExtractArchive(openHandle(t, path), root, testLimits())
	require.Error(t, err)

	var extErr *model.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, model.ExtractionCorrupt, extErr.Kind)
	assert.Contains(t, err.Error(), "invalid ZIP")
	assert.NotErrorIs(t, err, model.ErrSecurity)
	assert.Empty(t, regularFiles(t, root))
}

func TestExtractZipTooManyFiles(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "many.zip", buildZip(t, map[string]string{
		"a.txt": "a", "b.txt": "b", "c.txt": "c",
	}))
	limits := testLimits()
	limits.MaxMembers = 2

	_, err := ExtractArchive(openHandle(t, path), root, limits)
	require.ErrorIs(t, err, model.ErrSecurity)
	assert.Contains(t, err.Error(), "member limit")
	assert.Empty(t, regularFiles(t, root))
}

func TestExtractZipOverDefaultMemberLimit(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	entries := make(map[string]string, 101)
	for i := 0; i < 101; i++ {
		entries[fmt.Sprintf("f%03d.txt", i)] = "x"
	}
	path := writeArchive(t, dir, "crowded.zip", buildZip(t, entries))

	_, err := ExtractArchive(openHandle(t, path), root, model.DefaultLimits())
	require.ErrorIs(t, err, model.ErrSecurity)

	var secErr *model.SecurityError
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, model.SecurityTooManyMembers, secErr.Kind)
	assert.Contains(t, err.Error(), "100 member limit")
	assert.Empty(t, regularFiles(t, root))
}

func TestExtractMemberLayoutConflict(t *testing.T) {
	cases := []struct {
		name    string
		archive string
		data    func(t *testing.T) []byte
		format  string
	}{
		{
			name:    "zip",
			archive: "clash.zip",
			data: func(t *testing.T) []byte {
				return buildZip(t, map[string]string{"a": "file", "a/b.txt": "nested"})
			},
			format: "invalid ZIP",
		},
		{
			name:    "tar",
			archive: "clash.tar",
			data: func(t *testing.T) []byte {
				return buildTar(t, false, files("a", "file", "a/b.txt", "nested")...)
			},
			format: "invalid TAR",
		},
		{
			name:    "tar.gz deep",
			archive: "clash.tar.gz",
			data: func(t *testing.T) []byte {
				return buildTar(t, true, files("x/y/z.txt", "deep", "x", "file")...)
			},
			format: "invalid TAR",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			root := t.TempDir()
			path := writeArchive(t, dir, tc.archive, tc.data(t))

			got, err := ExtractArchive(openHandle(t, path), root, testLimits())
			require.Error(t, err)
			assert.Nil(t, got)

			var extErr *model.ExtractionError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, model.ExtractionCorrupt, extErr.Kind)
			assert.Contains(t, err.Error(), tc.format)
			assert.NotErrorIs(t, err, model.ErrSecurity)
			assert.NotContains(t, err.Error(), root)
			assert.Empty(t, regularFiles(t, root))
		})
	}
}

func TestMemberWriteErrorKinds(t *testing.T) {
	handle := model.ArchiveHandle{Name: "a.zip"}
	cases := []struct {
		name string
		err  error
		kind string
	}{
		{name: "not a directory", err: &fs.PathError{Op: "mkdir", Path: "/w/a", Err: syscall.ENOTDIR}, kind: model.ExtractionCorrupt},
		{name: "is a directory", err: &fs.PathError{Op: "open", Path: "/w/a", Err: syscall.EISDIR}, kind: model.ExtractionCorrupt},
		{name: "permission", err: &fs.PathError{Op: "open", Path: "/w/a", Err: syscall.EACCES}, kind: model.ExtractionIO},
		{name: "payload", err: fmt.Errorf("flate: corrupt input"), kind: model.ExtractionCorrupt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var extErr *model.ExtractionError
			require.ErrorAs(t, memberWriteError(handle, "ZIP", "a/b.txt", tc.err), &extErr)
			assert.Equal(t, tc.kind, extErr.Kind)
			if tc.kind == model.ExtractionCorrupt {
				assert.NotContains(t, extErr.Error(), "/w/a")
			}
		})
	}
}

func TestExtractTarWritesOnlyListedMembers(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "two.tar.gz", buildTar(t, true, files("a.txt", "a", "b.txt", "b")...))
	handle := openHandle(t, path)

	members, err := validateMembers(handle, testLimits())
	require.NoError(t, err)
	require.Len(t, members, 2)

	got, err := Extractor{Limits: testLimits()}.extractMembers(handle, root, members[:1])
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a.txt"}, regularFiles(t, root))
}

func TestExtractZipPathTraversalLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "evil.zip", buildZip(t, map[string]string{
		"a_good.txt":       "fine",
		"../../etc/passwd": "root:x:0:0",
	}))

	got, err := ExtractArchive(openHandle(t, path), root, testLimits())
	require.Error(t, err)
	assert.Nil(t, got)

	var secErr *model.SecurityError
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, model.SecurityPathTraversal, secErr.Kind)
	assert.Empty(t, regularFiles(t, root))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(filepath.Dir(root)), "etc", "passwd"))
}

func TestExtractZipAbsolutePathRejected(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "abs.zip", buildZip(t, map[string]string{"/tmp/abs.txt": "x"}))

	_, err := ExtractArchive(openHandle(t, path), root, testLimits())
	require.ErrorIs(t, err, model.ErrSecurity)
	assert.Empty(t, regularFiles(t, root))
}

func TestExtractZipSkipsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "mixed.zip", buildZip(t, map[string]string{
		"large.txt": strings.Repeat("L", 4096),
		"small.txt": "small",
	}))
	limits := testLimits()
	limits.MaxMemberBytes = 1024

	var skipped []string
	ex := Extractor{Limits: limits, OnSkip: func(member string, _ int64) { skipped = append(skipped, member) }}
	got, err := ex.Extract(openHandle(t, path), root)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "small.txt", got[0].MemberName)
	assert.Equal(t, []string{"large.txt"}, skipped)
	assert.NoFileExists(t, filepath.Join(root, "large.txt"))
}

func TestExtractTarSuccess(t *testing.T) {
	for _, tc := range []struct {
		name string
		gz   bool
	}{
		{"sample.tar", false},
		{"sample.tar.gz", true},
		{"sample.tgz", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			root := t.TempDir()
			path := writeArchive(t, dir, tc.name, buildTar(t, tc.gz, files(
				"document.pdf", "%PDF-1.4",
				"notes.txt", "notes",
			)...))

			got, err := ExtractArchive(openHandle(t, path), root, testLimits())
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, []string{"document.pdf", "notes.txt"}, regularFiles(t, root))
		})
	}
}

func TestExtractTarSkipsNonRegularMembers(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "links.tar", buildTar(t, false,
		tarEntry{name: "docs/", typeflag: tar.TypeDir},
		tarEntry{name: "docs/a.txt", body: "a"},
		tarEntry{name: "docs/passwd", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
		tarEntry{name: "docs/hard", typeflag: tar.TypeLink, linkname: "docs/a.txt"},
		tarEntry{name: "fifo", typeflag: tar.TypeFifo},
	))

	got, err := ExtractArchive(openHandle(t, path), root, testLimits())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "docs/a.txt", got[0].MemberName)
	assert.Equal(t, []string{"docs/a.txt"}, regularFiles(t, root))

	_, err = os.Lstat(filepath.Join(root, "docs", "passwd"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractTarPathTraversal(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "evil.tar.gz", buildTar(t, true, files(
		"ok.txt", "ok",
		"../../../tmp/evil.txt", "evil",
	)...))

	_, err := ExtractArchive(openHandle(t, path), root, testLimits())
	require.ErrorIs(t, err, model.ErrSecurity)
	assert.Empty(t, regularFiles(t, root))
}

func TestExtractTarSkipsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	path := writeArchive(t, dir, "mixed.tar", buildTar(t, false, files(
		"large.txt", strings.Repeat("L", 2048),
		"small.txt", "small",
	)...))
	limits := testLimits()
	limits.MaxMemberBytes = 1024

	got, err := ExtractArchive(openHandle(t, path), root, limits)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "small.txt", got[0].MemberName)
	assert.Equal(t, []string{"small.txt"}, regularFiles(t, root))
}

func TestExtractTarCorrupted(t *testing.T) {
	for _, name := range []string{"bad.tar", "bad.tar.gz"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			root := t.TempDir()
			path := writeArchive(t, dir, name, []byte("this is not a tar file"))

			_, err := ExtractArchive(openHandle(t, path), root, testLimits())
			require.Error(t, err)

			var extErr *model.ExtractionError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, model.ExtractionCorrupt, extErr.Kind)
			assert.Contains(t, err.Error(), "invalid TAR")
		})
	}
}

func TestExtractUnsupportedHandle(t *testing.T) {
	root := t.TempDir()
	_, err := Extractor{Limits: testLimits()}.extractMembers(model.ArchiveHandle{Name: "x.rar", Format: "rar"}, root, nil)
	var extErr *model.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, model.ExtractionUnsupported, extErr.Kind)
}
