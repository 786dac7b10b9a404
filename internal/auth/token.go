// Package auth issues and verifies the HS256 tokens renderers present when joining the
// snapshot stream.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures and missing claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrMissingToken is returned by Authenticate when the request carries no token.
	ErrMissingToken = errors.New("missing auth token")
)

// Claims is the subset of the token payload the stream cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// TokenVerifier signs and validates HS256 tokens with one shared secret.
type TokenVerifier struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewTokenVerifier rejects empty secrets; leeway absorbs clock skew on expiry.
func NewTokenVerifier(secret string, leeway time.Duration) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &TokenVerifier{secret: []byte(secret), leeway: leeway, now: time.Now}, nil
}

// WithClock overrides the verifier clock.
func (v *TokenVerifier) WithClock(clock func() time.Time) {
	if clock != nil {
		v.now = clock
	}
}

// Issue signs a token for subject valid for ttl.
func (v *TokenVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token subject must not be empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(v.secret)
}

// Verify checks the signature, algorithm and expiry and returns the claims.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	var registered jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(token, &registered, func(*jwt.Token) (any, error) { return v.secret, nil })
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(registered.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := &Claims{Subject: registered.Subject, ExpiresAt: registered.ExpiresAt.Time}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	return claims, nil
}

// Authenticate reads the token from the auth_token query parameter, a bearer
// Authorization header or X-Auth-Token and returns the verified subject.
func (v *TokenVerifier) Authenticate(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", ErrMissingToken
	}
	claims, err := v.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
