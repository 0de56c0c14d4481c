package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/service"
)

// Authenticator is the part of service.AuthService the handler needs.
// Accepting an interface lets the tests pass a stub.
type Authenticator interface {
	Login(ctx context.Context, lastName, birthdate string) (*service.LoginResult, error)
}

// AuthHandler serves the login endpoint.
type AuthHandler struct {
	auth   Authenticator
	events EventRecorder
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. events may be nil.
func NewAuthHandler(auth Authenticator, events EventRecorder, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		events: orNoop(events),
		logger: logger,
	}
}

type loginRequest struct {
	LastName  string `json:"last_name"`
	Birthdate string `json:"birthdate"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// HandleLogin exchanges credentials for a bearer token.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"last_name": "Scott", "birthdate": "1988-12-26"}
// RESPONSE:     {"token": "<jwt>"}
//
// A body that isn't JSON is treated like one with missing fields: same 400,
// same message.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.events.LoginAttempt(LoginBadRequest)
		badRequest(w, "Last name and birthdate required")
		return
	}

	result, err := h.auth.Login(r.Context(), req.LastName, req.Birthdate)
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			h.events.LoginAttempt(LoginBadRequest)
		case errors.Is(err, apperror.ErrUnauthorized):
			h.events.LoginAttempt(LoginInvalidCredentials)
		default:
			h.events.LoginAttempt(LoginError)
		}
		writeError(w, h.logger, err)
		return
	}

	h.events.LoginAttempt(LoginSuccess)
	writeJSON(w, http.StatusOK, loginResponse{Token: result.Token})
}
