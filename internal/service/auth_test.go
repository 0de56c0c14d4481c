package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/auth"
)

func newTestAuthService(t *testing.T, store *fakeStore) (*AuthService, *auth.TokenService) {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(store, ts, testLogger()), ts
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin_Success(t *testing.T) {
	store := newFakeStore()
	scott := store.addUser("Scott", "1988-12-26")
	svc, tokens := newTestAuthService(t, store)

	result, err := svc.Login(context.Background(), "scott", "12/26/1988")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.User.ID != scott.ID {
		t.Errorf("User.ID = %d, want %d", result.User.ID, scott.ID)
	}

	// The token must verify back to the same user.
	userID, err := tokens.Verify(result.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != scott.ID {
		t.Errorf("token user = %d, want %d", userID, scott.ID)
	}
}

func TestLogin_Errors(t *testing.T) {
	store := newFakeStore()
	store.addUser("Scott", "1988-12-26")
	svc, _ := newTestAuthService(t, store)

	tests := []struct {
		name      string
		lastName  string
		birthdate string
		wantKind  error
		wantMsg   string
	}{
		{"missing last name", "", "1988-12-26", apperror.ErrValidation, "Last name and birthdate required"},
		{"blank last name", "   ", "1988-12-26", apperror.ErrValidation, "Last name and birthdate required"},
		{"missing birthdate", "Scott", "", apperror.ErrValidation, "Last name and birthdate required"},
		{"bad birthdate", "Scott", "the day I was born", apperror.ErrValidation, "Invalid birthdate format"},
		{"wrong birthdate", "Scott", "1988-12-27", apperror.ErrUnauthorized, "Invalid credentials"},
		{"unknown name", "Nobody", "1988-12-26", apperror.ErrUnauthorized, "Invalid credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.lastName, tt.birthdate)

			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("Login() error = %v, want kind %v", err, tt.wantKind)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLogin_RepositoryError(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("database is locked")
	svc, _ := newTestAuthService(t, store)

	_, err := svc.Login(context.Background(), "Scott", "1988-12-26")

	if err == nil {
		t.Fatal("Login() should fail when the repository fails")
	}
	if errors.Is(err, apperror.ErrUnauthorized) {
		t.Error("a database failure must not be reported as bad credentials")
	}
}
