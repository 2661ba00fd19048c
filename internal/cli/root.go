package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"docintake/internal/config"
	"docintake/internal/model"
)

// Exit codes returned by Execute.
const (
	ExitSuccess         = 0
	ExitGenericError    = 1
	ExitConfigInvalid   = 2
	ExitArchiveRejected = 3
	ExitArchiveCorrupt  = 4
)

// GlobalFlags holds flags shared across all commands.
type GlobalFlags struct {
	ConfigPath   string
	StateDir     string
	WorkspaceDir string
	JSON         bool
	Verbose      bool
	Quiet        bool

	MaxArchiveBytes string
	MaxMembers      int
	MaxMemberBytes  string
	MaxDepth        int
	DocumentTypes   []string
}

// exitError carries the process exit code for an error returned by RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeFor maps an error to the exit code table above.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var extractionErr *model.ExtractionError
	switch {
	case errors.Is(err, model.ErrSecurity):
		return ExitArchiveRejected
	case errors.As(err, &extractionErr) && extractionErr.Kind != model.ExtractionIO:
		return ExitArchiveCorrupt
	case strings.HasPrefix(err.Error(), "CONFIG_INVALID"):
		return ExitConfigInvalid
	default:
		return ExitGenericError
	}
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	g := &GlobalFlags{}
	cmd := &cobra.Command{
		Use:           "docintake",
		Short:         "Safely unpack untrusted archives and discover the documents inside",
		Long:          "docintake extracts ZIP, TAR and TAR.GZ archives under strict size, member-count and path limits, finds the PDF and text documents they contain and always removes its temporary workspace.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.ConfigPath, "config", config.DefaultConfigFile, "config file path (.yaml or .toml)")
	pf.StringVar(&g.StateDir, "state-dir", "", "state directory holding run history (default: .docintake)")
	pf.StringVar(&g.WorkspaceDir, "workspace-dir", "", "parent directory for extraction workspaces (default: system temp dir)")
	pf.BoolVar(&g.JSON, "json", false, "emit JSON output and JSON logs")
	pf.BoolVarP(&g.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&g.Quiet, "quiet", "q", false, "only log warnings and errors")
	pf.StringVar(&g.MaxArchiveBytes, "max-archive-size", "", "maximum archive size (e.g. 50MiB)")
	pf.IntVar(&g.MaxMembers, "max-members", 0, "maximum number of archive members")
	pf.StringVar(&g.MaxMemberBytes, "max-member-size", "", "maximum size of a single extracted member (e.g. 10MiB)")
	pf.IntVar(&g.MaxDepth, "max-depth", 0, "maximum archive-within-archive nesting depth")
	pf.StringSliceVar(&g.DocumentTypes, "doc-types", nil, "document suffixes to collect (e.g. .pdf,.txt)")

	cmd.AddCommand(newExtractCmd(g))
	cmd.AddCommand(newInspectCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newHistoryCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return execute(context.Background(), rootCmd, os.Stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	st := newStyles(stderr, false)
	fmt.Fprintln(stderr, st.errPrefix(), err)
	return exitCodeFor(err)
}

// overrides turns explicitly set flags into config overrides.
func (g *GlobalFlags) overrides(cmd *cobra.Command) (*config.Overrides, error) {
	o := &config.Overrides{}
	flags := cmd.Flags()
	if flags.Changed("max-archive-size") {
		n, err := humanize.ParseBytes(g.MaxArchiveBytes)
		if err != nil {
			return nil, fmt.Errorf("CONFIG_INVALID: --max-archive-size: %w", err)
		}
		v := int64(n)
		o.MaxArchiveBytes = &v
	}
	if flags.Changed("max-member-size") {
		n, err := humanize.ParseBytes(g.MaxMemberBytes)
		if err != nil {
			return nil, fmt.Errorf("CONFIG_INVALID: --max-member-size: %w", err)
		}
		v := int64(n)
		o.MaxMemberBytes = &v
	}
	if flags.Changed("max-members") {
		v := g.MaxMembers
		o.MaxMembers = &v
	}
	if flags.Changed("max-depth") {
		v := g.MaxDepth
		o.MaxDepth = &v
	}
	if flags.Changed("doc-types") {
		o.DocumentTypes = append([]string(nil), g.DocumentTypes...)
	}
	if flags.Changed("workspace-dir") {
		v := g.WorkspaceDir
		o.WorkspaceDir = &v
	}
	if flags.Changed("state-dir") {
		v := g.StateDir
		o.StateDir = &v
	}
	return o, nil
}

// loadConfig resolves the effective configuration for cmd. Failures exit 2.
func (g *GlobalFlags) loadConfig(cmd *cobra.Command, skipValidate bool) (*config.Config, error) {
	o, err := g.overrides(cmd)
	if err != nil {
		return nil, withExitCode(ExitConfigInvalid, err)
	}
	if listen, ok := listenOverride(cmd); ok {
		o.Listen = &listen
	}
	cfg, err := config.Load(config.Options{
		ConfigPath:   g.ConfigPath,
		SkipValidate: skipValidate,
		Overrides:    o,
	})
	if err != nil {
		return nil, withExitCode(ExitConfigInvalid, err)
	}
	return cfg, nil
}

func listenOverride(cmd *cobra.Command) (string, bool) {
	flag := cmd.Flags().Lookup("listen")
	if flag == nil || !flag.Changed {
		return "", false
	}
	return flag.Value.String(), true
}

// newLogger builds the slog logger for a command. --verbose and --quiet take
// precedence over log.level; --json forces the JSON handler.
func (g *GlobalFlags) newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if g.Verbose {
		level = slog.LevelDebug
	} else if g.Quiet {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	if g.JSON || strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
