package main

import (
	"github.com/spf13/cobra"

	"github.com/WessleyAI/dealflow/engine/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and graph constraints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := store.Migrate(a.cfg.DatabaseURL); err != nil {
				return err
			}
			a.log.Info("migrate: postgres up to date")

			g, err := a.graph(cmd.Context())
			if err != nil || g == nil {
				return err
			}
			if err := g.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("migrate: graph constraints ensured")
			return nil
		},
	}
}
