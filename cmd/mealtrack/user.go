package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/server"
	"github.com/sakif/mealtrack/internal/service"
)

func newUserCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users (the API has no signup)",
	}
	cmd.AddCommand(newUserAddCmd(v), newUserFindCmd(v))
	return cmd
}

func newUserAddCmd(v *viper.Viper) *cobra.Command {
	var lastName, birthdate string

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Create a user unless one with the same credentials exists",
		Example: "  mealtrack user add --last-name Scott --birthdate 1988-12-26",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, logger, closeStore, err := openUsers(cmd, v)
			if err != nil {
				return err
			}
			defer closeStore()

			user, err := users.Register(cmd.Context(), lastName, birthdate)
			out := cmd.OutOrStdout()
			switch {
			case errors.Is(err, apperror.ErrConflict):
				fmt.Fprintf(out, "User %s (birthdate %s) already exists with id %d\n",
					user.LastName, user.BirthdateString(), user.ID)
				return nil
			case err != nil:
				return err
			}

			logger.Debug("user created from CLI", slog.Int64("userID", user.ID))
			fmt.Fprintf(out, "Created user %d: %s (birthdate %s)\n", user.ID, user.LastName, user.BirthdateString())
			return nil
		},
	}

	cmd.Flags().StringVar(&lastName, "last-name", "", "user's last name (login is case-insensitive)")
	cmd.Flags().StringVar(&birthdate, "birthdate", "", "user's birthdate, e.g. 1988-12-26")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("birthdate")
	return cmd
}

func newUserFindCmd(v *viper.Viper) *cobra.Command {
	var lastName string

	cmd := &cobra.Command{
		Use:   "find",
		Short: "List users with a last name (case-insensitive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, _, closeStore, err := openUsers(cmd, v)
			if err != nil {
				return err
			}
			defer closeStore()

			found, err := users.FindByLastName(cmd.Context(), lastName)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintf(out, "No users found with last name %q\n", lastName)
				return nil
			}
			for _, u := range found {
				fmt.Fprintf(out, "id=%d last_name=%s birthdate=%s created_at=%s\n",
					u.ID, u.LastName, u.BirthdateString(), u.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&lastName, "last-name", "", "last name to search for")
	_ = cmd.MarkFlagRequired("last-name")
	return cmd
}

// openUsers loads config, opens the store and wraps it in a UserService.
// The returned func closes the store.
func openUsers(cmd *cobra.Command, v *viper.Viper) (*service.UserService, *slog.Logger, func(), error) {
	cfg, logger, err := loadConfig(v, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := server.OpenStore(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return service.NewUserService(store, logger), logger, func() { store.Close() }, nil
}
