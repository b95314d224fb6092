package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and retry webhook events",
}

var eventsLimit int

var eventsFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List events that failed processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := app.Services(cmd.Context())
		if err != nil {
			return err
		}

		events, err := svc.Billing.ListFailedEvents(cmd.Context(), eventsLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No failed events")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tRECEIVED\tERROR")
		for _, e := range events {
			msg := ""
			if e.ErrorMessage != nil {
				msg = *e.ErrorMessage
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.EventType, e.CreatedAt.Format(time.DateTime), msg)
		}
		return w.Flush()
	},
}

var eventsRetryCmd = &cobra.Command{
	Use:   "retry <event-id>",
	Short: "Schedule a failed event for processing again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid event id: %w", err)
		}

		svc, err := app.Services(cmd.Context())
		if err != nil {
			return err
		}
		if err := svc.Billing.RetryEvent(cmd.Context(), id); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Event %s scheduled\n", id)
		return nil
	},
}

func init() {
	eventsFailedCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events to list")

	eventsCmd.AddCommand(eventsFailedCmd, eventsRetryCmd)
}
