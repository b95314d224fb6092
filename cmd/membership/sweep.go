package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation sweep against the provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := app.Services(cmd.Context())
		if err != nil {
			return err
		}
		report, err := svc.Reconciler.Run(cmd.Context())
		if err != nil {
			return err
		}
		if report.Skipped {
			fmt.Fprintln(cmd.OutOrStdout(), "Another reconciliation holds the lease, nothing done")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checked %d, corrected %d, failed %d\n", report.Checked, report.Drifted, report.Failed)
		return nil
	},
}

var renewalsCmd = &cobra.Command{
	Use:   "renewals",
	Short: "Announce payments due within the renewal window",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := app.Services(cmd.Context())
		if err != nil {
			return err
		}
		sent, err := svc.Renewals.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published %d renewal notices\n", sent)
		return nil
	},
}
