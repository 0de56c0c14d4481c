// Package main is the entry point for the mealtrack API and its admin commands.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (flags, environment, config files)
// 2. Create dependencies (logger, database connection)
// 3. Hand them to the packages that do the actual work
//
// COMMANDS (cobra):
//
//	mealtrack serve                       run the HTTP API
//	mealtrack migrate                     create the schema and exit
//	mealtrack user add --last-name --birthdate
//	mealtrack user find --last-name
//
// Users are only ever created from the command line; the API has no signup.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sakif/mealtrack/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree around its own viper instance, so tests
// can run commands without touching global state.
func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "mealtrack",
		Short:         "Meal and glucose tracking API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Flags are dashed on the command line and bound to the underscored
	// config keys, so --database-url, DATABASE_URL and database_url in
	// config.yaml are the same setting.
	flags := root.PersistentFlags()
	flags.String("config", "", "path to a config file (default ./config.yaml if present)")
	flags.String("env-file", ".env", "path to a .env file (ignored if missing)")
	flags.String("database-url", config.DefaultDatabaseURL, "SQLite file path or postgres:// URL")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	bindFlags(v, flags, map[string]string{
		config.KeyConfigFile:  "config",
		config.KeyEnvFile:     "env-file",
		config.KeyDatabaseURL: "database-url",
		config.KeyLogLevel:    "log-level",
	})

	root.AddCommand(
		newServeCmd(v),
		newMigrateCmd(v),
		newUserCmd(v),
	)
	return root
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		// Lookup can't return nil here: every flag is registered before binding.
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

// loadConfig reads the configuration and builds the logger from it.
//
// Logs go to stderr so that command output on stdout (user listings) stays
// clean enough to pipe.
func loadConfig(v *viper.Viper, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}
