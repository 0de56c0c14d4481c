package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-at-least-16-chars!!"

// newTestTokenService creates a TokenService with a fixed, known secret so
// tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// signRaw signs arbitrary claims with the test secret, for building tokens
// Issue would never produce.
func signRaw(t *testing.T, method jwt.SigningMethod, c jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing raw token: %v", err)
	}
	return s
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", 0)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts := newTestTokenService(t)
	if ts.ttl != 30*24*time.Hour {
		t.Errorf("ttl = %v, want 30 days", ts.ttl)
	}
}

func TestNewTokenService_NegativeTTL(t *testing.T) {
	if _, err := NewTokenService(testSecret, -time.Hour); err == nil {
		t.Fatal("NewTokenService() should reject a negative TTL")
	}
}

// =========================================================================
// ISSUE TESTS
// =========================================================================

func TestIssue_Claims(t *testing.T) {
	ts := newTestTokenService(t)
	issuedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return issuedAt }

	token, err := ts.Issue(42)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("Issue() token doesn't look like a JWT: %q", token)
	}

	// Decode without verifying to look at the payload.
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}

	if c.Subject != "42" {
		t.Errorf("sub = %q, want %q", c.Subject, "42")
	}
	if c.UserID != 42 {
		t.Errorf("user_id = %d, want 42", c.UserID)
	}
	if c.Issuer != "mealtrack" {
		t.Errorf("iss = %q, want mealtrack", c.Issuer)
	}
	if !c.IssuedAt.Time.Equal(issuedAt) {
		t.Errorf("iat = %v, want %v", c.IssuedAt.Time, issuedAt)
	}
	if !c.ExpiresAt.Time.Equal(issuedAt.Add(30 * 24 * time.Hour)) {
		t.Errorf("exp = %v, want iat + 30 days", c.ExpiresAt.Time)
	}
	if c.ID == "" {
		t.Error("jti is empty")
	}
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	ts := newTestTokenService(t)
	fixed := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return fixed }

	token1, _ := ts.Issue(1)
	token2, _ := ts.Issue(1)

	if token1 == token2 {
		t.Error("Issue() returned identical tokens for the same user in the same second")
	}
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerify_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue(7)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != 7 {
		t.Errorf("Verify() userID = %d, want 7", got)
	}
}

// A token issued at T is good until T+30d and no longer.
func TestVerify_ThirtyDayBoundary(t *testing.T) {
	ts := newTestTokenService(t)
	issuedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return issuedAt }

	token, err := ts.Issue(7)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	expiry := issuedAt.Add(30 * 24 * time.Hour)

	ts.now = func() time.Time { return expiry.Add(-time.Second) }
	if _, err := ts.Verify(token); err != nil {
		t.Errorf("Verify() one second before expiry error = %v", err)
	}

	ts.now = func() time.Time { return expiry.Add(time.Second) }
	if _, err := ts.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() one second after expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_SubSecondIssueKeepsFullTTL(t *testing.T) {
	ts := newTestTokenService(t)
	issuedAt := time.Date(2024, 1, 15, 12, 0, 0, 700_000_000, time.UTC)
	ts.now = func() time.Time { return issuedAt }

	token, err := ts.Issue(7)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	expiry := issuedAt.Add(30 * 24 * time.Hour)

	ts.now = func() time.Time { return expiry.Add(-100 * time.Millisecond) }
	if _, err := ts.Verify(token); err != nil {
		t.Errorf("Verify() 100ms before expiry error = %v", err)
	}

	ts.now = func() time.Time { return expiry.Add(time.Second) }
	if _, err := ts.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() one second after expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	valid, _ := ts.Issue(7)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	other, _ := NewTokenService("another-secret-of-enough-length", 0)
	otherSecret, _ := other.Issue(7)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "7", Issuer: "mealtrack", ExpiresAt: future,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
		{"tampered signature", valid[:len(valid)-3] + "xxx"},
		{"different secret", otherSecret},
		{"alg none", noneToken},
		{"HS512", signRaw(t, jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject: "7", Issuer: "mealtrack", ExpiresAt: future,
		})},
		{"wrong issuer", signRaw(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "7", Issuer: "someone-else", ExpiresAt: future,
		})},
		{"no expiry", signRaw(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "7", Issuer: "mealtrack",
		})},
		{"non-numeric subject", signRaw(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "alice", Issuer: "mealtrack", ExpiresAt: future,
		})},
		{"subject disagrees with user_id", signRaw(t, jwt.SigningMethodHS256, claims{
			UserID:           8,
			RegisteredClaims: jwt.RegisteredClaims{Subject: "7", Issuer: "mealtrack", ExpiresAt: future},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Verify(tt.token)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
