package ingest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"docintake/internal/model"
)

type tarEntry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

// buildZip returns the bytes of a zip archive containing files in name order.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range sortedKeys(files) {
		fw, err := w.Create(name)
		require.NoError(t, err, "zip create %s", name)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err, "zip write %s", name)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// buildTar returns the bytes of a tar archive; gz wraps it in gzip.
func buildTar(t *testing.T, gz bool, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	var (
		gw *gzip.Writer
		w  io.Writer = &buf
	)
	if gz {
		gw = gzip.NewWriter(&buf)
		w = gw
	}
	tw := tar.NewWriter(w)
	for _, e := range entries {
		typeflag := e.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		hdr := &tar.Header{Name: e.name, Typeflag: typeflag, Linkname: e.linkname, Mode: 0o644}
		if typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if typeflag == tar.TypeDir {
			hdr.Mode = 0o755
		}
		require.NoError(t, tw.WriteHeader(hdr), "tar header %s", e.name)
		if typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err, "tar write %s", e.name)
		}
	}
	require.NoError(t, tw.Close())
	if gw != nil {
		require.NoError(t, gw.Close())
	}
	return buf.Bytes()
}

func files(pairs ...string) []tarEntry {
	out := make([]tarEntry, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, tarEntry{name: pairs[i], body: pairs[i+1]})
	}
	return out
}

func writeArchive(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func openHandle(t *testing.T, path string) model.ArchiveHandle {
	t.Helper()
	h, err := OpenArchive(path, filepath.Base(path))
	require.NoError(t, err)
	return h
}

// regularFiles lists every regular file under root relative to root.
func regularFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func testLimits() model.ExtractionLimits {
	return model.DefaultLimits()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func docNames(docs []model.DiscoveredDocument) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, filepath.Base(d.Path))
	}
	sort.Strings(out)
	return out
}
