package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"docintake/internal/ingest"
	"docintake/internal/model"
)

const (
	verdictExtract = "extract"
	verdictSkip    = "skip"
	verdictReject  = "reject"
)

type memberReport struct {
	ingest.Member
	Verdict string `json:"verdict"`
	Reason  string `json:"reason,omitempty"`
}

type inspectReport struct {
	Archive   string         `json:"archive"`
	Format    string         `json:"format"`
	SizeBytes int64          `json:"size_bytes"`
	Members   []memberReport `json:"members"`
	Accepted  bool           `json:"accepted"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func newInspectCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect ARCHIVE",
		Short: "Check an archive against the extraction limits without extracting it",
		Long: "inspect detects the archive format, checks its size and member count and reports, per member, " +
			"whether extraction would write, skip or reject it. Nothing is written to disk.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, g, args[0])
		},
	}
}

func runInspect(cmd *cobra.Command, g *GlobalFlags, archive string) error {
	cfg, err := g.loadConfig(cmd, false)
	if err != nil {
		return err
	}

	report, inspectErr := inspectArchive(archive, cfg.Limits)
	out := cmd.OutOrStdout()
	if g.JSON {
		if err := json.NewEncoder(out).Encode(report); err != nil {
			return err
		}
	} else {
		printInspect(out, newStyles(out, false), report)
	}
	return inspectErr
}

// inspectArchive runs the detector and the archive-level validators, then
// classifies every member the way the extractor would.
func inspectArchive(archive string, limits model.ExtractionLimits) (inspectReport, error) {
	report := inspectReport{Archive: archive, Members: []memberReport{}}
	fail := func(err error) (inspectReport, error) {
		report.ErrorKind = model.ErrorKind(err)
		report.Error = err.Error()
		return report, err
	}

	handle, err := ingest.OpenArchive(archive, filepath.Base(archive))
	if err != nil {
		return fail(err)
	}
	report.Format = string(handle.Format)

	size, err := ingest.ValidateArchiveSize(handle, limits)
	report.SizeBytes = size
	if err != nil {
		return fail(err)
	}
	if _, err := ingest.ValidateMemberCount(handle, limits); err != nil {
		return fail(err)
	}
	members, err := ingest.ListMembers(handle)
	if err != nil {
		return fail(err)
	}

	// Containment is checked against a root that never exists on disk.
	root := filepath.Join(os.TempDir(), "docintake-inspect")
	var firstViolation error
	for _, m := range members {
		r := memberReport{Member: m, Verdict: verdictExtract}
		switch {
		case m.Kind == ingest.MemberDir:
			r.Verdict, r.Reason = verdictSkip, "directory"
		case m.Kind == ingest.MemberSpecial:
			r.Verdict, r.Reason = verdictSkip, "not a regular file"
		default:
			if _, err := ingest.MemberTarget(root, m.Name); err != nil {
				r.Verdict, r.Reason = verdictReject, err.Error()
				if firstViolation == nil {
					firstViolation = err
				}
			} else if m.Size > limits.MaxMemberBytes {
				r.Verdict = verdictSkip
				r.Reason = fmt.Sprintf("exceeds %s member limit", humanize.IBytes(uint64(limits.MaxMemberBytes)))
			}
		}
		report.Members = append(report.Members, r)
	}
	if firstViolation != nil {
		return fail(firstViolation)
	}
	report.Accepted = true
	return report, nil
}

func printInspect(w io.Writer, st styles, r inspectReport) {
	verdict := st.status("accepted", true)
	if !r.Accepted {
		verdict = st.status("rejected", false)
	}
	fmt.Fprintf(w, "%s %s\n", st.sectionHeader(r.Archive), verdict)
	if r.Format != "" {
		fmt.Fprintln(w, st.kv("Format", r.Format))
	}
	if r.SizeBytes > 0 {
		fmt.Fprintln(w, st.kv("Size", humanize.IBytes(uint64(r.SizeBytes))))
	}
	if r.Error != "" {
		fmt.Fprintln(w, st.kv("Reason", r.Error))
	}
	if len(r.Members) == 0 {
		return
	}
	fmt.Fprintln(w, st.kv("Members", fmt.Sprintf("%d", len(r.Members))))
	fmt.Fprintln(w, "  "+st.rule())
	for _, m := range r.Members {
		line := fmt.Sprintf("  %-7s %10s  %s", m.Verdict, humanize.IBytes(uint64(m.Size)), m.Name)
		if m.Reason != "" {
			line += " " + st.dim("("+m.Reason+")")
		}
		fmt.Fprintln(w, line)
	}
}
