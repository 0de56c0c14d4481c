package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sakif/mealtrack/internal/config"
	"github.com/sakif/mealtrack/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			// JWT_SECRET must be a long random string. Use:
			//   JWT_SECRET=$(openssl rand -hex 32)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}

			store, err := server.OpenStore(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}

			srv, err := server.New(cfg, store, logger)
			if err != nil {
				store.Close()
				return fmt.Errorf("creating server: %w", err)
			}

			// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
			// and closes the store on the way out.
			if err := srv.Start(); err != nil {
				logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}

	cmd.Flags().Int("port", 8080, "port to listen on")
	bindFlags(v, cmd.Flags(), map[string]string{config.KeyPort: "port"})
	return cmd
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		Long:  "Creates the users, meals and glucose_readings tables if they don't exist. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			// Both stores migrate on open.
			store, err := server.OpenStore(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("migrating database: %w", err)
			}
			defer store.Close()

			logger.Info("schema is up to date", slog.Bool("postgres", cfg.UsesPostgres()))
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
			return nil
		},
	}
}
