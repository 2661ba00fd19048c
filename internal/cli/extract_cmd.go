package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docintake/internal/ingest"
	"docintake/internal/model"
	"docintake/internal/textextract"
)

type extractOptions struct {
	text   bool
	jobs   int
	outDir string
}

type documentReport struct {
	Path          string `json:"path"`
	DocType       string `json:"doc_type"`
	Depth         int    `json:"depth"`
	SourceArchive string `json:"source_archive,omitempty"`
	CopiedTo      string `json:"copied_to,omitempty"`
	Text          string `json:"text,omitempty"`
	TextError     string `json:"text_error,omitempty"`
}

// archiveReport is the outcome of one archive; in --json mode each report is
// written as one NDJSON line.
type archiveReport struct {
	Archive        string           `json:"archive"`
	RunID          string           `json:"run_id,omitempty"`
	Format         string           `json:"format,omitempty"`
	SizeBytes      int64            `json:"size_bytes,omitempty"`
	SHA256         string           `json:"sha256,omitempty"`
	ExtractedCount int              `json:"extracted_count"`
	Documents      []documentReport `json:"documents"`
	ErrorKind      string           `json:"error_kind,omitempty"`
	Error          string           `json:"error,omitempty"`

	err error
}

func newExtractCmd(g *GlobalFlags) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract ARCHIVE...",
		Short: "Extract archives and list the documents found in them",
		Long: "extract processes each archive in its own temporary workspace, lists the supported documents " +
			"it contains and removes the workspace afterwards. Use --out to keep copies of the documents.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, g, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.text, "text", false, "extract text from every discovered document")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 4, "archives processed concurrently")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "copy discovered documents into this directory")
	return cmd
}

func runExtract(cmd *cobra.Command, g *GlobalFlags, opts *extractOptions, archives []string) error {
	rt, err := g.newRuntime(cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	jobs := opts.jobs
	if jobs <= 0 {
		jobs = 1
	}

	ctx := cmd.Context()
	reports := make([]archiveReport, len(archives))
	var eg errgroup.Group
	eg.SetLimit(jobs)
	for i, archive := range archives {
		eg.Go(func() error {
			reports[i] = extractOne(ctx, rt, opts, archive)
			return nil
		})
	}
	_ = eg.Wait()

	out := cmd.OutOrStdout()
	if g.JSON {
		enc := json.NewEncoder(out)
		for _, r := range reports {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	} else {
		printReports(out, newStyles(out, false), reports)
	}

	var (
		failed   int
		firstErr error
	)
	for _, r := range reports {
		if r.err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = r.err
		}
	}
	switch {
	case failed == 0:
		return nil
	case len(reports) == 1:
		return firstErr
	default:
		return fmt.Errorf("%d of %d archives failed: %w", failed, len(reports), firstErr)
	}
}

func extractOne(ctx context.Context, rt *runtime, opts *extractOptions, archive string) archiveReport {
	report := archiveReport{Archive: archive, Documents: []documentReport{}}
	err := rt.processor.ProcessWith(ctx, archive, filepath.Base(archive), func(res *ingest.Result) error {
		report.RunID = res.RunID
		report.Format = string(res.Archive.Format)
		report.SizeBytes = res.SizeBytes
		report.SHA256 = res.SHA256
		report.ExtractedCount = len(res.Extracted)

		var texts []textextract.DocumentText
		if opts.text && len(res.Documents) > 0 {
			var err error
			texts, err = textextract.ExtractAll(ctx, rt.extractor, res.Documents, rt.cfg.Text.Workers)
			if err != nil {
				return err
			}
		}

		for i, doc := range res.Documents {
			d := documentReport{
				Path:          doc.RelPath,
				DocType:       doc.DocType,
				Depth:         doc.Depth,
				SourceArchive: doc.SourceArchive,
			}
			if texts != nil {
				d.Text = texts[i].Text
				if texts[i].Err != nil {
					d.TextError = texts[i].Err.Error()
				}
			}
			if opts.outDir != "" {
				dest, err := copyDocument(opts.outDir, archiveStem(res.Archive.Name), doc)
				if err != nil {
					return err
				}
				d.CopiedTo = dest
			}
			report.Documents = append(report.Documents, d)
		}
		return nil
	})
	if err != nil {
		report.err = err
		report.Error = err.Error()
		report.ErrorKind = model.ErrorKind(err)
	}
	return report
}

// copyDocument copies doc to outDir/stem/<rel path>, refusing targets that
// would leave outDir.
func copyDocument(outDir, stem string, doc model.DiscoveredDocument) (string, error) {
	target, err := ingest.MemberTarget(outDir, path.Join(stem, doc.RelPath))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	src, err := os.Open(doc.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", doc.RelPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("copy %s: %w", doc.RelPath, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", target, err)
	}
	return target, nil
}

// archiveStem strips the archive suffix: "reports.tar.gz" -> "reports".
func archiveStem(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(lower, suffix) && len(name) > len(suffix) {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}

func printReports(w io.Writer, st styles, reports []archiveReport) {
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if r.err != nil {
			fmt.Fprintf(w, "%s %s\n", st.sectionHeader(r.Archive), st.status("failed", false))
			fmt.Fprintln(w, st.kv("Error kind", r.ErrorKind))
			fmt.Fprintln(w, st.kv("Reason", r.Error))
			continue
		}
		fmt.Fprintf(w, "%s %s\n", st.sectionHeader(r.Archive), st.status("completed", true))
		fmt.Fprintln(w, st.kv("Run", r.RunID))
		fmt.Fprintln(w, st.kv("Format", r.Format))
		fmt.Fprintln(w, st.kv("Size", humanize.IBytes(uint64(r.SizeBytes))))
		fmt.Fprintln(w, st.kv("SHA-256", r.SHA256))
		fmt.Fprintf(w, "  %s %s\n", st.stat("extracted", r.ExtractedCount), st.stat("documents", len(r.Documents)))
		if len(r.Documents) == 0 {
			fmt.Fprintf(w, "  %s no supported documents found\n", st.warnPrefix())
			continue
		}
		fmt.Fprintln(w, "  "+st.rule())
		for _, d := range r.Documents {
			line := fmt.Sprintf("  %-5s %s", d.DocType, d.Path)
			if d.Depth > 0 {
				line += " " + st.dim(fmt.Sprintf("(depth %d, from %s)", d.Depth, d.SourceArchive))
			}
			fmt.Fprintln(w, line)
			if d.CopiedTo != "" {
				fmt.Fprintln(w, "        "+st.dim("-> "+d.CopiedTo))
			}
			if d.TextError != "" {
				fmt.Fprintf(w, "        %s %s\n", st.warnPrefix(), d.TextError)
			} else if d.Text != "" {
				fmt.Fprintln(w, "        "+st.dim(preview(d.Text, 72)))
			}
		}
	}
}

// preview returns the first line of text, cut to at most n runes.
func preview(text string, n int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	runes := []rune(text)
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return text
}
