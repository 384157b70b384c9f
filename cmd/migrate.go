package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vallemarketing/valle360-teste-sub009/config"
	"github.com/vallemarketing/valle360-teste-sub009/internal/database"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Runs database migrations to ensure the database schema
is up-to-date. This is useful for CI/CD pipelines or initial setup.`,
	RunE: runMigration,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigration(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log.Info().Msg("Connecting to database")
	cfg.DB.AutoMigrate = false
	cfg.DB.ReadOnlyDSN = ""
	conns, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conns.Close()

	log.Info().Msg("Running database migrations")
	if err := models.SetupModels(conns.DB); err != nil {
		return err
	}

	log.Info().Msg("Database migrations completed successfully")
	return nil
}
