package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheEntropyCollective/mediavault/pkg/metadata/postgres"
	"github.com/TheEntropyCollective/mediavault/pkg/util"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version]",
	Short: "Manage the PostgreSQL metadata schema",
	Long: `Applies (up), rolls back (down) or reports (version) the metadata schema.
Only the postgres driver has a schema; badger needs no migrations.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "down", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := initLogger(cfg); err != nil {
			return err
		}
		if cfg.Database.Driver != "postgres" {
			fmt.Println(color.CyanString("→") + " The " + cfg.Database.Driver + " metadata store has no schema to migrate")
			return nil
		}

		db, err := postgres.NewDatabase(cmd.Context(), postgresConfig(cfg))
		if err != nil {
			return err
		}
		defer db.Close()

		switch action {
		case "up":
			err = db.MigrateToLatest(cmd.Context())
		case "down":
			err = db.MigrateDown(cmd.Context())
		case "version":
		default:
			return util.WrapErrorWithSuggestion(fmt.Errorf("unknown migrate action %q", action), "Use one of: up, down, version")
		}
		if err != nil {
			return err
		}

		version, dirty, err := db.SchemaVersion()
		if err != nil {
			return err
		}
		if jsonOutput {
			return util.PrintJSONSuccess(cmd.OutOrStdout(), map[string]interface{}{"version": version, "dirty": dirty})
		}
		status := color.GreenString("✓")
		if dirty {
			status = color.YellowString("!")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Schema version %d (dirty: %t)\n", status, version, dirty)
		return nil
	},
}
