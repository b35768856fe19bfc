package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrAuthorization = errors.New("not authorized")
	ErrTransport     = errors.New("transport error")
	ErrAuthExpired   = errors.New("access token expired")
	ErrParse         = errors.New("unexpected response body")
)

// StatusError is a non-200 response from the leaderboard API
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

// Unwrap maps 401 to ErrAuthExpired and every other status to ErrTransport.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrAuthExpired
	}
	return ErrTransport
}
