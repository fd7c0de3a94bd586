package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/dealflow/engine/events"
	"github.com/WessleyAI/dealflow/pkg/natsutil"
)

func newEventsCmd(a *app) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published pipeline events",
	}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print events as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.NATSURL == "" {
				return errors.New("events: NATS_URL is not set")
			}
			nc, err := natsutil.Connect(a.cfg.NATSURL, "dealflow-tail")
			if err != nil {
				return err
			}
			defer nc.Close()

			out := cmd.OutOrStdout()
			sub, err := natsutil.Subscribe(nc, subject, func(_ context.Context, ev json.RawMessage) {
				fmt.Fprintln(out, string(ev))
			})
			if err != nil {
				return err
			}
			defer func() { _ = sub.Unsubscribe() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.log.Info("events: tailing", "subject", subject)
			<-ctx.Done()
			return nil
		},
	}
	tail.Flags().StringVar(&subject, "subject", events.SubjectAll, "subject filter")
	cmd.AddCommand(tail)
	return cmd
}
