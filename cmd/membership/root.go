package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFiles []string
	app      *App
)

var rootCmd = &cobra.Command{
	Use:   "membership",
	Short: "Membership billing service",
	Long: `membership keeps member subscriptions in step with MercadoPago.

It serves the signed webhook endpoint and the entitlement API, runs the
event processor and periodic sweeps, and offers operator commands for
coupons, fixtures and failed events.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := NewApp(envFiles...)
		if err != nil {
			return err
		}
		app = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(renewalsCmd)
	rootCmd.AddCommand(couponCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(eventsCmd)
}
