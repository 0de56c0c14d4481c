package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/auth"
	"github.com/sakif/mealtrack/internal/dates"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

// AuthService handles login.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// There are no passwords: a user proves who they are with their last name
// and birthdate, which an administrator registered beforehand.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// LoginResult bundles the user record and the issued token.
type LoginResult struct {
	User  *model.User
	Token string
}

// Login checks credentials and issues a token.
//
// ERRORS:
//   - either field blank      → ValidationFailed "Last name and birthdate required"
//   - birthdate unparseable   → ValidationFailed "Invalid birthdate format"
//   - no matching user        → Unauthorized "Invalid credentials"
//
// An unknown last name and a wrong birthdate produce the same error, so the
// response never reveals which names are registered.
func (s *AuthService) Login(ctx context.Context, lastName, birthdate string) (*LoginResult, error) {
	lastName = strings.TrimSpace(lastName)
	birthdate = strings.TrimSpace(birthdate)
	if lastName == "" || birthdate == "" {
		return nil, apperror.ValidationFailed("", "Last name and birthdate required")
	}

	day, err := dates.ParseDay(birthdate)
	if err != nil {
		return nil, apperror.ValidationFailed("birthdate", "Invalid birthdate format")
	}

	user, err := s.users.FindUserByCredentials(ctx, lastName, day)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Never log the birthdate; together with the name it is the credential.
			s.logger.Info("login failed", slog.String("lastName", lastName))
			return nil, apperror.Unauthorized("Invalid credentials")
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %d: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.Int64("userID", user.ID))
	return &LoginResult{User: user, Token: token}, nil
}
