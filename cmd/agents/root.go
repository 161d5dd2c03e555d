package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/store"
	"github.com/needze/agentflow/internal/config"
	"github.com/needze/agentflow/internal/llm"
	"github.com/needze/agentflow/internal/logging"
	"github.com/needze/agentflow/internal/telemetry"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	verbose bool
	jsonOut bool
	events  bool

	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Provider
	registry  *prometheus.Registry
	metrics   *graph.PrometheusMetrics
	costs     *graph.CostTracker
	models    *llm.Factory
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "agents",
		Short: "Influencer agent workflows",
		Long: `agents runs the workflows behind a virtual influencer account:
issue monitoring, caption writing, lyric writing, face generation and
comment collection. serve exposes the tools and the monitoring workflow
over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file path (YAML)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVar(&a.events, "events", false, "stream workflow events to stderr as JSON lines")

	root.AddCommand(
		newManageCmd(a),
		newTextCmd(a),
		newMusicCmd(a),
		newImageCmd(a),
		newCommentsCmd(a),
		newCheckCmd(a),
		newServeCmd(a),
		newRunsCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(a.verbose, !a.jsonOut)
	if err != nil {
		return err
	}
	a.logger = logger

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	a.telemetry = tp

	a.registry = prometheus.NewRegistry()
	a.metrics = graph.NewPrometheusMetrics(a.registry)
	a.costs = graph.NewCostTracker("USD")
	a.models = &llm.Factory{Providers: cfg.Providers, Costs: a.costs}
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if a.logger != nil {
		if a.costs != nil && len(a.costs.Calls()) > 0 {
			in, out := a.costs.TokenUsage()
			a.logger.Info("model usage",
				zap.Float64("cost_usd", a.costs.TotalCost()),
				zap.Int64("input_tokens", in),
				zap.Int64("output_tokens", out))
		}
		// Sync fails on terminals; nothing useful to do about it.
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// emitter logs every workflow event and, with tracing on, records it as a
// span. --events adds a raw JSONL stream on stderr.
func (a *app) emitter() emit.Emitter {
	emitters := []emit.Emitter{emit.NewZapEmitter(a.logger)}
	if a.events {
		emitters = append(emitters, emit.NewLogEmitter(os.Stderr, true))
	}
	if a.telemetry.Enabled() {
		emitters = append(emitters, emit.NewOTelEmitter(a.telemetry.Tracer("agentflow")))
	}
	return emit.NewMultiEmitter(emitters...)
}

// openStore opens the configured state store for one workflow's state type.
// The returned function closes it.
func openStore[S any](a *app) (store.Backend[S], func(), error) {
	st, err := store.Open[S](a.cfg.Store.Driver, a.cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, func() {
		if err := store.CloseIfCloser(st); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}, nil
}

// print writes v as indented JSON with --json, otherwise calls text.
func (a *app) print(w io.Writer, v any, text func(io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func ptr[T any](v T) *T { return &v }
