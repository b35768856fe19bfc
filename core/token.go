package core

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenExpiry reads the exp claim of a JWT access token without verifying it.
// The API treats tokens as opaque, so callers must not rely on this for anything
// but display; a 401 remains the only authoritative expiry signal.
func AccessTokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: access token is not a JWT: %v", ErrParse, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: access token has no exp claim", ErrParse)
	}
	return claims.ExpiresAt.Time, nil
}
