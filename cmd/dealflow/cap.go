package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/dealflow/engine/domain"
)

// resolveDay parses --day, defaulting to today in the catalog zone.
func resolveDay(flag string, loc *time.Location, now time.Time) (domain.Day, error) {
	if flag == "" {
		return domain.DayOf(now, loc), nil
	}
	return domain.ParseDay(flag)
}

func newCapCmd(a *app) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "cap",
		Short: "Inspect or set the daily promotion cap",
	}
	cmd.PersistentFlags().StringVar(&day, "day", "", "civil day YYYY-MM-DD (default today)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cap and usage for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := a.cfg.location()
			if err != nil {
				return err
			}
			d, err := resolveDay(day, loc, time.Now())
			if err != nil {
				return err
			}
			pg, err := a.postgres(cmd.Context())
			if err != nil {
				return err
			}
			c, err := pg.GetDailyCap(cmd.Context(), d, a.cfg.DailyCap)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				domain.DailyCap
				Remaining int `json:"remaining"`
			}{c, c.Remaining()})
		},
	}

	set := &cobra.Command{
		Use:   "set N",
		Short: "Set the cap for a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("cap must be an integer: %w", err)
			}
			loc, err := a.cfg.location()
			if err != nil {
				return err
			}
			d, err := resolveDay(day, loc, time.Now())
			if err != nil {
				return err
			}
			pg, err := a.postgres(cmd.Context())
			if err != nil {
				return err
			}
			if err := pg.SetDailyCap(cmd.Context(), d, n); err != nil {
				return err
			}
			a.log.Info("cap: set", "day", d, "cap", n)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
