package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database/mariadb"
	"github.com/kozaktomas/facewatch/internal/database/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply pending schema migrations for the configured SQL store.
The memory and bolt stores need no migrations.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "List applied migrations without applying new ones")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	out := cmd.OutOrStdout()

	switch cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if mustGetBool(cmd, "status") {
			applied, err := pool.MigrationsApplied(ctx)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(out, "applied  %s\n", name)
			}
			return nil
		}

		applied, err := pool.Migrate(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(out, "Schema is up to date.")
		}
		for _, name := range applied {
			fmt.Fprintf(out, "Applied %s\n", name)
		}
	case config.StoreMariaDB:
		pool, err := mariadb.NewPool(ctx, &cfg.MariaDB)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "MariaDB schema is up to date.")
	default:
		fmt.Fprintf(out, "Store %q needs no migrations.\n", cfg.Store.Backend)
	}
	return nil
}
