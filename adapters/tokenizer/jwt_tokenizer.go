package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const AudienceAccess = "leaderboard:access"
const AudienceRefresh = "leaderboard:refresh"

var ErrInvalidToken = errors.New("invalid token")

// JWTTokenizer issues and verifies HS256 access and refresh tokens
type JWTTokenizer struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(key []byte, accessTTL, refreshTTL time.Duration) *JWTTokenizer {
	return &JWTTokenizer{
		key:        key,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of the tokenizer that reads time from now
func (j *JWTTokenizer) WithClock(now func() time.Time) *JWTTokenizer {
	cp := *j
	cp.now = now
	return &cp
}

// IssueAccess creates an access token for subject
func (j *JWTTokenizer) IssueAccess(subject string) (string, error) {
	return j.issue(subject, AudienceAccess, j.accessTTL)
}

// IssueRefresh creates a refresh token for subject
func (j *JWTTokenizer) IssueRefresh(subject string) (string, error) {
	return j.issue(subject, AudienceRefresh, j.refreshTTL)
}

// ParseAccess validates an access token and returns its subject
func (j *JWTTokenizer) ParseAccess(token string) (string, error) {
	return j.parse(token, AudienceAccess)
}

// ParseRefresh validates a refresh token and returns its subject
func (j *JWTTokenizer) ParseRefresh(token string) (string, error) {
	return j.parse(token, AudienceRefresh)
}

func (j *JWTTokenizer) issue(subject, audience string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(j.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

func (j *JWTTokenizer) parse(tokenStr, audience string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.key, nil
	}, jwt.WithAudience(audience), jwt.WithTimeFunc(j.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
