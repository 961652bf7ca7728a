package cli

import (
	"fmt"

	"resumescan/internal/errors"
	"resumescan/internal/store"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	Long: `Create the resume job table and its indexes in the configured PostgreSQL
database. Every migration is idempotent, so running it twice is safe.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("database-url", "", "PostgreSQL connection URL (default from config)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	url := cfg.Database.URL
	if flagURL, _ := cmd.Flags().GetString("database-url"); flagURL != "" {
		url = flagURL
	}
	if url == "" {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"a database url is required (database.url or --database-url)", nil)
	}

	pg, err := store.ConnectPostgres(ctx, url, cfg.Database.MaxConns, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
	return nil
}
