// Package auth issues and verifies the bearer tokens that protect the API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client POSTs last name + birthdate to /api/auth/login
//  2. Server finds the matching user and issues a signed JWT
//  3. Client stores the token and sends it as "Authorization: Bearer <token>"
//  4. RequireAuth verifies the token on every protected route and puts the
//     user ID in the request context
//
// WHY JWT?
// JWT (JSON Web Token) is stateless: the server doesn't need to store session
// data. The user ID and expiry travel inside the signed token, and the
// signature ensures nobody can tamper with them without the secret key.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"42","user_id":42,"exp":1234567890,...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// Tokens cannot be revoked before they expire. Rotating the secret invalidates
// every outstanding token at once.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// DefaultTokenTTL is how long a login stays valid: 30 days.
const DefaultTokenTTL = 30 * 24 * time.Hour

const issuer = "mealtrack"

var (
	// ErrTokenExpired means the token was genuine but its exp has passed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers everything else: bad signature, wrong algorithm,
	// wrong issuer, malformed structure or subject.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens. The same secret
// must be used for both operations, so every server instance needs the same one.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time // swapped in tests to move the clock
}

// NewTokenService creates a TokenService with the given secret.
// A ttl of 0 means DefaultTokenTTL.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl < 0 {
		return nil, errors.New("auth: token TTL must not be negative")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// claims is the JWT payload.
//
// "sub" (Subject) holds the user ID as a decimal string, which is the standard
// place for it. user_id repeats it as a JSON number for clients that read the
// payload without converting.
type claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Issue creates and signs a token for userID, valid for the service's TTL.
//
// Signing algorithm: HS256 (HMAC-SHA256), symmetric, same key for both ends.
// The jti is a fresh xid so two tokens issued in the same second still differ.
func (s *TokenService) Issue(userID int64) (string, error) {
	now := s.now()

	// NumericDate has whole-second precision and truncates. Round exp up
	// instead so the token never dies before the full TTL has passed.
	exp := now.Add(s.ttl)
	if t := exp.Truncate(time.Second); !t.Equal(exp) {
		exp = t.Add(time.Second)
	}

	c := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    issuer,
			ID:        xid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and checks a token, returning the user ID it was issued for.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - exp is present and still in the future
//   - Issuer is "mealtrack" (prevents tokens from other apps)
//   - Algorithm is HS256
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, an attacker could send a token with
// "alg":"none" and a naive verifier might accept it. jwt.WithValidMethods
// rejects anything but HS256 before the key is even looked at.
func (s *TokenService) Verify(tokenStr string) (int64, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("%w: unexpected claims", ErrTokenInvalid)
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: malformed subject %q", ErrTokenInvalid, c.Subject)
	}
	if c.UserID != 0 && c.UserID != userID {
		return 0, fmt.Errorf("%w: subject and user_id disagree", ErrTokenInvalid)
	}

	return userID, nil
}
