// Package auth implements credential verification for the chat server. A
// bearer token is an HS256-signed JWT carrying the principal's id and display
// name; the same verifier backs both the HTTP middleware and the WebSocket
// handshake.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, malformed, expired, or badly
// signed credentials. Callers reject the request or connection and never
// retry.
var ErrInvalidToken = errors.New("auth: invalid token")

// Principal is an authenticated identity derived from a verified credential.
// It is never persisted.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// claims is the JWT claim set issued and verified by the TokenManager.
type claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a TokenManager signing with the given secret.
// Tokens expire after ttl.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed bearer token for the principal.
func (m *TokenManager) Issue(p Principal) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns the embedded
// principal. Any failure is reported as ErrInvalidToken; the underlying
// cause is wrapped for logging.
func (m *TokenManager) Verify(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{ID: c.Subject, Name: c.Name}, nil
}
