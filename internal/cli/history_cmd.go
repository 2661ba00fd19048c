package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"docintake/internal/model"
)

func newHistoryCmd(g *GlobalFlags) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show recorded archive runs",
		Long:  "history lists recent runs newest first, or shows one run with its documents when RUN_ID is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			if offset < 0 {
				return errors.New("--offset must not be negative")
			}
			st, err := g.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if g.JSON {
					return json.NewEncoder(out).Encode(run)
				}
				printRun(out, newStyles(out, false), run)
				return nil
			}

			runs, err := st.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if g.JSON {
				enc := json.NewEncoder(out)
				for _, run := range runs {
					if err := enc.Encode(run); err != nil {
						return err
					}
				}
				return nil
			}
			printRuns(out, newStyles(out, false), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	return cmd
}

func printRuns(w io.Writer, st styles, runs []model.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, st.dim("no runs recorded"))
		return
	}
	for _, run := range runs {
		ok := run.FinalState == model.StateCompleted
		fmt.Fprintf(w, "%s  %-9s  %-20s  %s %s\n",
			run.RunID,
			st.status(string(run.FinalState), ok),
			run.StartedAt.Local().Format(time.DateTime),
			run.ArchiveName,
			st.dim(fmt.Sprintf("(%d documents)", run.DocumentCount)),
		)
	}
}

func printRun(w io.Writer, st styles, run model.RunRecord) {
	ok := run.FinalState == model.StateCompleted
	fmt.Fprintf(w, "%s %s\n", st.sectionHeader(run.ArchiveName), st.status(string(run.FinalState), ok))
	fmt.Fprintln(w, st.kv("Run", run.RunID))
	if run.Format != "" {
		fmt.Fprintln(w, st.kv("Format", string(run.Format)))
	}
	fmt.Fprintln(w, st.kv("Size", humanize.IBytes(uint64(run.SizeBytes))))
	if run.SHA256 != "" {
		fmt.Fprintln(w, st.kv("SHA-256", run.SHA256))
	}
	fmt.Fprintln(w, st.kv("Started", run.StartedAt.Local().Format(time.RFC3339)))
	fmt.Fprintln(w, st.kv("Duration", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()))
	fmt.Fprintf(w, "  %s %s\n", st.stat("extracted", run.ExtractedCount), st.stat("documents", run.DocumentCount))
	if run.ErrorKind != "" {
		fmt.Fprintln(w, st.kv("Error kind", run.ErrorKind))
		fmt.Fprintln(w, st.kv("Reason", run.ErrorMessage))
	}
	for _, doc := range run.Documents {
		fmt.Fprintln(w, "  "+doc)
	}
}
