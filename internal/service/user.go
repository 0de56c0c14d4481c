package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/dates"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

// UserService is the administrative side of user management. The HTTP API
// never creates users; the `mealtrack user` commands call this.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// Register creates a user unless one with the same credentials already exists,
// in which case it returns an apperror.ErrConflict. Running it twice is safe.
//
// The schema has no unique constraint on (last_name, birthdate), so this
// check-then-insert is the only guard. It's only ever run by hand.
func (s *UserService) Register(ctx context.Context, lastName, birthdate string) (*model.User, error) {
	lastName = strings.TrimSpace(lastName)
	if lastName == "" {
		return nil, apperror.ValidationFailed("last_name", "last name is required")
	}
	day, err := dates.ParseDay(birthdate)
	if err != nil {
		return nil, apperror.ValidationFailed("birthdate", "Invalid birthdate format")
	}

	existing, err := s.users.FindUserByCredentials(ctx, lastName, day)
	switch {
	case err == nil:
		return existing, apperror.Conflict("User",
			fmt.Sprintf("%s born %s (id %d)", existing.LastName, existing.BirthdateString(), existing.ID))
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("checking for existing user: %w", err)
	}

	user := &model.User{LastName: lastName, Birthdate: day}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user registered", slog.Int64("userID", user.ID), slog.String("lastName", lastName))
	return user, nil
}

// FindByLastName lists users whose last name matches case-insensitively.
func (s *UserService) FindByLastName(ctx context.Context, lastName string) ([]model.User, error) {
	lastName = strings.TrimSpace(lastName)
	if lastName == "" {
		return nil, apperror.ValidationFailed("last_name", "last name is required")
	}
	users, err := s.users.ListUsersByLastName(ctx, lastName)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}
