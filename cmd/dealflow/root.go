package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/dealflow/engine/catalog"
	"github.com/WessleyAI/dealflow/engine/store"
)

// app carries configuration and lazily opened backends for one command.
type app struct {
	cfg     Config
	log     *slog.Logger
	closers []func()
}

func newRootCmd(cfg Config) *cobra.Command {
	a := &app{cfg: cfg}
	root := &cobra.Command{
		Use:          "dealflow",
		Short:        "Small-business listing ingestion and promotion",
		Long:         "dealflow crawls broker listing sources, normalizes listings and promotes qualifying deals into a capped daily catalog.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.log = newLogger(a.cfg.LogLevel)
			slog.SetDefault(a.log)
		},
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	root.PersistentFlags().StringVar(&a.cfg.SourcesFile, "sources", cfg.SourcesFile, "path to the sources YAML file")
	root.PersistentFlags().StringVar(&a.cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	root.PersistentFlags().StringVar(&a.cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	root.AddCommand(
		newRunCmd(a),
		newMigrateCmd(a),
		newSourcesCmd(a),
		newCapCmd(a),
		newCatalogCmd(a),
		newEventsCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dealflow %s (commit: %s)\n", version, commit)
		},
	}
}

func (a *app) onClose(f func()) { a.closers = append(a.closers, f) }

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) postgres(ctx context.Context) (*store.Postgres, error) {
	pg, err := store.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.onClose(pg.Close)
	return pg, nil
}

// graph returns nil when no Neo4j URL is configured.
func (a *app) graph(ctx context.Context) (*catalog.Graph, error) {
	if a.cfg.Neo4jURL == "" {
		return nil, nil
	}
	driver, err := neo4j.NewDriverWithContext(a.cfg.Neo4jURL, neo4j.BasicAuth(a.cfg.Neo4jUser, a.cfg.Neo4jPass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	a.onClose(func() { _ = driver.Close(context.WithoutCancel(ctx)) })
	return catalog.New(driver), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
