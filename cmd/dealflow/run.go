package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/dealflow/engine/events"
	"github.com/WessleyAI/dealflow/engine/fetch"
	"github.com/WessleyAI/dealflow/engine/ingest"
	"github.com/WessleyAI/dealflow/engine/parser"
	"github.com/WessleyAI/dealflow/engine/promote"
	"github.com/WessleyAI/dealflow/engine/store"
	"github.com/WessleyAI/dealflow/pkg/metrics"
	"github.com/WessleyAI/dealflow/pkg/mid"
	"github.com/WessleyAI/dealflow/pkg/natsutil"
	"github.com/WessleyAI/dealflow/pkg/resilience"
)

type runOptions struct {
	dryRun   bool
	interval time.Duration
	opsAddr  string
	ingest   ingest.Config
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline once, or every --interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd, opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.dryRun, "dry-run", false, "use an in-memory store seeded from the sources file")
	f.DurationVar(&opts.interval, "interval", 0, "repeat runs at this interval until interrupted")
	f.StringVar(&opts.opsAddr, "ops-addr", "", "serve /metrics and /healthz on this address")
	f.IntVar(&opts.ingest.SourceConcurrency, "source-concurrency", ingest.DefaultSourceConcurrency, "sources crawled at once")
	f.IntVar(&opts.ingest.MaxSourcesPerRun, "max-sources", ingest.DefaultMaxSourcesPerRun, "due sources processed per run")
	f.IntVar(&opts.ingest.MaxStubsPerSource, "max-stubs", ingest.DefaultMaxStubsPerSource, "index stubs processed per source")
	f.IntVar(&opts.ingest.BreakerThreshold, "breaker-threshold", 0, "consecutive detail failures that pause a source (0 disables)")
	f.DurationVar(&opts.ingest.BreakerCooldown, "breaker-cooldown", ingest.DefaultBreakerCooldown, "pause after the breaker trips")
	return cmd
}

func (a *app) run(ctx context.Context, cmd *cobra.Command, opts runOptions) error {
	reg := metrics.New("dealflow")
	runner, err := a.buildRunner(ctx, opts, reg)
	if err != nil {
		return err
	}

	if opts.opsAddr != "" {
		a.serveOps(ctx, opts.opsAddr, reg)
	}

	for {
		summary, err := runner.Run(ctx)
		if werr := writeJSON(cmd.OutOrStdout(), summary); werr != nil {
			return werr
		}
		if err != nil && opts.interval <= 0 {
			return err
		}
		if opts.interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.interval):
		}
	}
}

func (a *app) buildRunner(ctx context.Context, opts runOptions, reg *metrics.Registry) (*ingest.Runner, error) {
	loc, err := a.cfg.location()
	if err != nil {
		return nil, err
	}
	parsers := parser.Default()

	var st store.Store
	if opts.dryRun {
		sources, err := loadSources(a.cfg.SourcesFile, parsers)
		if err != nil {
			return nil, err
		}
		mem := store.NewMemory()
		if err := mem.UpsertSources(ctx, sources); err != nil {
			return nil, err
		}
		st = mem
	} else {
		pg, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		st = pg
	}

	fetcher := fetch.New(fetch.Config{SlowHosts: a.cfg.SlowHosts, UserAgent: a.cfg.UserAgent})
	deps := ingest.Deps{
		Store:    st,
		Parsers:  parsers,
		Fetcher:  fetcher,
		Pacer:    resilience.NewPacer(),
		Promoter: promote.New(st, a.cfg.DailyCap, loc),
		Metrics:  ingest.NewMetrics(reg),
		Logger:   a.log,
	}

	if !opts.dryRun {
		g, err := a.graph(ctx)
		if err != nil {
			return nil, err
		}
		if g != nil {
			deps.Graph = g
		}
		if a.cfg.NATSURL != "" {
			nc, err := natsutil.Connect(a.cfg.NATSURL, "dealflow")
			if err != nil {
				return nil, err
			}
			a.onClose(func() { _ = nc.Drain() })
			deps.Events = events.NewPublisher(nc)
		}
	}
	return ingest.New(deps, opts.ingest), nil
}

func (a *app) serveOps(ctx context.Context, addr string, reg *metrics.Registry) {
	handler := mid.Chain(reg.Mux(),
		mid.Recover(a.log),
		mid.Logger(a.log),
		mid.Instrument(reg),
		mid.OTel("dealflow-ops"),
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		a.log.Info("ops: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("ops: server exited", "error", err)
		}
	}()
	a.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
}
