package main

import (
	"github.com/spf13/cobra"

	"github.com/avuweb/membership/internal/db"
	"github.com/avuweb/membership/pkg/config"
	"github.com/avuweb/membership/pkg/pg"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return err
		}
		pool, err := app.DB(cmd.Context())
		if err != nil {
			return err
		}
		return pg.Migrate(cmd.Context(), pool, db.Migrations, cfg, app.Logger())
	},
}
