package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docintake/internal/model"
)

const nestedWorkspacePattern = "nested-*"

// DiscoverOptions controls document discovery over an extraction tree.
type DiscoverOptions struct {
	Limits model.ExtractionLimits
	// DocumentTypes lists collected suffixes (".pdf", ".txt", ...); empty
	// means DefaultDocumentTypes.
	DocumentTypes []string
	Logger        *slog.Logger
	// OnNestedArchive, if non-nil, is called once per nested archive with
	// whether it was extracted.
	OnNestedArchive func(relPath string, depth int, extracted bool)
	// OnSkip is forwarded to the extractor used for nested archives.
	OnSkip func(member string, size int64)
}

// DiscoverDocuments walks rootDir and returns every supported document,
// extracting nested archives while their depth is below Limits.MaxDepth.
// Directory nesting does not consume the depth budget.
func DiscoverDocuments(ctx context.Context, rootDir string, options DiscoverOptions) ([]model.DiscoveredDocument, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	rootResolved := absRoot
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		rootResolved = resolved
	}
	rootResolved = filepath.Clean(rootResolved)
	rootInfo, err := os.Stat(rootResolved)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !rootInfo.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", rootResolved)
	}

	docs := make([]model.DiscoveredDocument, 0, 16)
	walker := discoverWalker{
		root:     rootResolved,
		options:  options,
		docTypes: documentTypeSet(options.DocumentTypes),
		extractor: Extractor{
			Limits: options.Limits,
			Logger: options.Logger,
			OnSkip: options.OnSkip,
		},
		docs:        &docs,
		visitedDirs: map[string]struct{}{rootResolved: {}},
	}
	if err := walker.walkDir(ctx, rootResolved, 0, ""); err != nil {
		return nil, err
	}
	return docs, nil
}

type discoverWalker struct {
	root        string
	options     DiscoverOptions
	docTypes    map[string]struct{}
	extractor   Extractor
	docs        *[]model.DiscoveredDocument
	visitedDirs map[string]struct{}
}

func (w *discoverWalker) logger() *slog.Logger {
	if w.options.Logger != nil {
		return w.options.Logger
	}
	return slog.Default()
}

// classify tags one directory entry. Symlinks and special files are ignored
// so discovery never leaves the workspace.
func (w *discoverWalker) classify(name string, info fs.FileInfo) model.EntryKind {
	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		return model.EntryIgnored
	case mode.IsDir():
		return model.EntryDirectory
	case !mode.IsRegular():
		return model.EntryIgnored
	}
	if _, ok := w.docTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return model.EntryDocument
	}
	if IsArchive(name) {
		return model.EntryNestedArchive
	}
	return model.EntryIgnored
}

func (w *discoverWalker) walkDir(ctx context.Context, dir string, depth int, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			w.logger().Warn("permission denied during discovery", "dir", dir, "err", err)
			return nil
		}
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		fullPath := filepath.Join(dir, entry.Name())
		info, err := os.Lstat(fullPath)
		if err != nil {
			w.logger().Warn("stat failed during discovery", "path", fullPath, "err", err)
			continue
		}

		switch w.classify(entry.Name(), info) {
		case model.EntryDocument:
			w.addDocument(fullPath, depth, source)
		case model.EntryNestedArchive:
			if err := w.enterArchive(ctx, dir, fullPath, depth); err != nil {
				return err
			}
		case model.EntryDirectory:
			canonical := filepath.Clean(fullPath)
			if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
				canonical = filepath.Clean(resolved)
			}
			if _, ok := w.visitedDirs[canonical]; ok {
				continue
			}
			w.visitedDirs[canonical] = struct{}{}
			if err := w.walkDir(ctx, canonical, depth, source); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *discoverWalker) addDocument(path string, depth int, source string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	*w.docs = append(*w.docs, model.DiscoveredDocument{
		Path:          path,
		RelPath:       filepath.ToSlash(rel),
		DocType:       ClassifyDocType(path),
		Depth:         depth,
		SourceArchive: source,
	})
	w.logger().Debug("found supported document", "path", filepath.ToSlash(rel), "depth", depth)
}

// enterArchive extracts a nested archive into a sub-workspace created next to
// it and discovers that sub-workspace one level deeper. Failures of a nested
// archive are logged and never fail the parent.
func (w *discoverWalker) enterArchive(ctx context.Context, dir, archivePath string, depth int) error {
	rel, err := filepath.Rel(w.root, archivePath)
	if err != nil {
		rel = filepath.Base(archivePath)
	}
	rel = filepath.ToSlash(rel)

	if depth >= w.options.Limits.MaxDepth {
		w.logger().Warn("max extraction depth reached, skipping nested archive", "archive", rel, "depth", depth)
		w.notifyNested(rel, depth, false)
		return nil
	}

	handle, err := OpenArchive(archivePath, filepath.Base(archivePath))
	if err != nil {
		w.logger().Warn("failed to open nested archive", "archive", rel, "err", err)
		w.notifyNested(rel, depth, false)
		return nil
	}

	sub, err := os.MkdirTemp(dir, nestedWorkspacePattern)
	if err != nil {
		return fmt.Errorf("create nested workspace: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(sub); err == nil {
		sub = resolved
	}
	sub = filepath.Clean(sub)
	w.visitedDirs[sub] = struct{}{}

	w.logger().Info("found nested archive", "archive", rel, "depth", depth)
	if _, err := w.extractor.Extract(handle, sub); err != nil {
		w.logger().Warn("failed to extract nested archive", "archive", rel, "err", err)
		_ = os.RemoveAll(sub)
		w.notifyNested(rel, depth, false)
		return nil
	}
	w.notifyNested(rel, depth, true)
	return w.walkDir(ctx, sub, depth+1, rel)
}

func (w *discoverWalker) notifyNested(rel string, depth int, extracted bool) {
	if w.options.OnNestedArchive != nil {
		w.options.OnNestedArchive(rel, depth, extracted)
	}
}
