package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"docintake/internal/config"
	"docintake/internal/server"
)

func newServeCmd(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the archive upload API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g)
		},
	}
	cmd.Flags().String("listen", "", "host:port to listen on (default from config: 127.0.0.1:8080)")
	return cmd
}

func runServe(cmd *cobra.Command, g *GlobalFlags) error {
	rt, err := g.newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg

	if cfg.State.History {
		if err := config.WriteSnapshot(cfg.State.Dir, cfg); err != nil {
			rt.logger.Warn("failed to write config snapshot", "err", err)
		}
	}

	if dir := cfg.Workspace.BaseDir; dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create workspace dir: %w", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	opts := server.Options{
		Processor:      rt.processor,
		Extractor:      rt.extractor,
		Metrics:        rt.prom,
		MetricsHandler: rt.prom.Handler(),
		Logger:         rt.logger,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		TrustedProxies: cfg.Server.TrustedProxies,
		TextWorkers:    cfg.Text.Workers,
		UploadDir:      cfg.Workspace.BaseDir,
	}
	if rt.store != nil {
		opts.Store = rt.store
	}
	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("bind %s: %w", cfg.Server.Listen, err)
	}

	if !g.Quiet && !g.JSON {
		out := cmd.OutOrStdout()
		st := newStyles(out, false)
		fmt.Fprintf(out, "%s %s\n", st.banner(), st.dim(version))
		fmt.Fprintln(out, st.kv("Listening", "http://"+ln.Addr().String()))
		fmt.Fprintln(out, st.kv("Upload limit", humanize.IBytes(uint64(cfg.Server.MaxUploadBytes))))
		fmt.Fprintln(out, st.kv("Archive limit", humanize.IBytes(uint64(cfg.Limits.MaxArchiveBytes))))
		if rt.store != nil {
			fmt.Fprintln(out, st.kv("History", cfg.DBPath()))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, ln)
}
