package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/dealflow/engine/catalog"
	"github.com/WessleyAI/dealflow/pkg/repo"
)

var errNoGraph = errors.New("catalog: NEO4J_URL is not set")

func newCatalogCmd(a *app) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse the deal graph",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List projected deals ordered by id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.requireGraph(cmd.Context())
			if err != nil {
				return err
			}
			deals, err := g.Deals(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), deals)
		},
	}
	list.Flags().IntVar(&offset, "offset", 0, "number of deals to skip")
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of deals")

	show := &cobra.Command{
		Use:   "show <deal-id>",
		Short: "Print one projected deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.requireGraph(cmd.Context())
			if err != nil {
				return err
			}
			deal, err := g.Deal(cmd.Context(), args[0])
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("catalog: no deal %q in the graph", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), deal)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func (a *app) requireGraph(ctx context.Context) (*catalog.Graph, error) {
	g, err := a.graph(ctx)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errNoGraph
	}
	return g, nil
}
