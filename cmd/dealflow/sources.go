package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/parser"
)

// sourcesFile is the YAML layout of the sources file.
type sourcesFile struct {
	Sources []domain.Source `yaml:"sources"`
}

// loadSources reads and validates a sources file against the registered
// parsers.
func loadSources(path string, reg *parser.Registry) ([]domain.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources %s: %w", path, err)
	}
	if err := domain.ValidateSources(f.Sources, reg.Known); err != nil {
		return nil, fmt.Errorf("sources %s: %w", path, err)
	}
	return f.Sources, nil
}

func newSourcesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage listing sources",
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Upsert the sources file into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, err := loadSources(a.cfg.SourcesFile, parser.Default())
			if err != nil {
				return err
			}
			pg, err := a.postgres(cmd.Context())
			if err != nil {
				return err
			}
			if err := pg.UpsertSources(cmd.Context(), sources); err != nil {
				return err
			}
			a.log.Info("sources: synced", "count", len(sources), "file", a.cfg.SourcesFile)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured sources and their crawl state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := a.postgres(cmd.Context())
			if err != nil {
				return err
			}
			sources, err := pg.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			return printSources(cmd, sources, time.Now())
		},
	}

	cmd.AddCommand(sync, list)
	return cmd
}

func printSources(cmd *cobra.Command, sources []domain.Source, now time.Time) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPARSER\tENABLED\tINTERVAL\tRPM\tLAST CRAWLED\tDUE")
	for _, s := range sources {
		last := "never"
		if s.LastCrawledAt != nil {
			last = s.LastCrawledAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%dm\t%d\t%s\t%t\n",
			s.ID, s.ParserKey, s.Enabled, s.CrawlIntervalMins, s.RateLimitPerMinute, last, s.Due(now))
	}
	return w.Flush()
}
