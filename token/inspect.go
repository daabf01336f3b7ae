package token

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/internal/errors"
)

// Claims is what the client can learn from an access token without verifying it.
// Signature checks belong to the auth service; nothing here is trusted for authorization.
type Claims struct {
	Subject   string    // Usually the user's email
	IssuedAt  time.Time // Zero when absent
	ExpiresAt time.Time // Zero when absent
}

// Inspect decodes a JWT access token without verifying its signature.
// Opaque tokens yield ErrNotJWT.
func Inspect(rawToken string) (*Claims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if strings.Count(rawToken, ".") != 2 {
		return nil, errors.ErrNotJWT
	}

	registered := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, registered); err != nil {
		return nil, fmt.Errorf("[token Inspect] %w: %v", errors.ErrNotJWT, err)
	}

	claims := &Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// ExpiryOf returns the access token expiry, or the zero time when it cannot be determined.
func ExpiryOf(rawToken string) time.Time {
	claims, err := Inspect(rawToken)
	if err != nil {
		return time.Time{}
	}
	return claims.ExpiresAt
}
