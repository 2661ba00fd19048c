package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"docintake/internal/config"
	"docintake/internal/ingest"
	"docintake/internal/metrics"
	"docintake/internal/store"
	"docintake/internal/textextract"
)

// runtime bundles the collaborators a command needs for one invocation.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	processor *ingest.Processor
	store     *store.SQLiteStore
	extractor *textextract.Extractor
	metrics   metrics.Recorder
	prom      *metrics.Prom
}

// newRuntime loads config and wires the processor. withProm selects the
// Prometheus recorder; otherwise metrics are discarded.
func (g *GlobalFlags) newRuntime(cmd *cobra.Command, withProm bool) (*runtime, error) {
	cfg, err := g.loadConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	logger := g.newLogger(cmd.ErrOrStderr(), cfg)

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.Noop{},
		extractor: &textextract.Extractor{
			MaxBytes: cfg.Text.MaxBytes,
			Logger:   logger,
		},
	}
	if withProm {
		rt.prom = metrics.NewProm("docintake")
		rt.metrics = rt.prom
	}

	p := ingest.NewProcessor(cfg.Limits, cfg.Documents.Types)
	p.SetLogger(logger)
	p.SetWorkspaceDir(cfg.Workspace.BaseDir)
	p.SetObserver(rt.metrics)
	rt.processor = p

	if cfg.State.History {
		st := store.NewSQLiteStore(cfg.DBPath())
		if err := st.Init(cmd.Context()); err != nil {
			return nil, fmt.Errorf("open run history %s: %w", cfg.DBPath(), err)
		}
		rt.store = st
		p.SetRecorder(st)
	}
	return rt, nil
}

func (rt *runtime) Close() error {
	if rt == nil || rt.store == nil {
		return nil
	}
	return rt.store.Close()
}

// openStore opens the run history without wiring a processor.
func (g *GlobalFlags) openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	cfg, err := g.loadConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	if !cfg.State.History {
		return nil, errors.New("run history is disabled (state.history=false)")
	}
	st := store.NewSQLiteStore(cfg.DBPath())
	if err := st.Init(cmd.Context()); err != nil {
		return nil, fmt.Errorf("open run history %s: %w", cfg.DBPath(), err)
	}
	return st, nil
}
