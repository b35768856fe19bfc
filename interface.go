package leaderboard

import (
	"context"

	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
	"github.com/layer-3/leaderboard/service"
)

// Client represents the public interface of a leaderboard session
type Client interface {
	// RequestOTP emails a one-time password to the player
	RequestOTP(ctx context.Context, email string) error

	// VerifyOTP exchanges the one-time password for an access and a refresh token
	VerifyOTP(ctx context.Context, email, code string) error

	// RefreshAccessToken renews the access token, coalescing concurrent calls
	RefreshAccessToken(ctx context.Context) error

	// SubmitScore posts an HMAC-signed score for the signed-in player
	SubmitScore(ctx context.Context, score float64, topic, secret string) error

	// ServerSubmitScore posts a score authenticated by the API secret
	ServerSubmitScore(ctx context.Context, username string, score float64) error

	// GetTopScores fetches a ranked leaderboard
	GetTopScores(ctx context.Context, q core.TopScoresQuery) error

	// GetUser fetches the signed-in player's profile
	GetUser(ctx context.Context) error

	// CheckResponse classifies resp, optionally scheduling a refresh on 401
	CheckResponse(ctx context.Context, resp *ports.Response, refreshOnUnauthorized bool) bool

	// HandleUnauthorized schedules one refresh in reaction to a 401
	HandleUnauthorized(ctx context.Context) error

	// SignOut drops the token pair
	SignOut(ctx context.Context)

	// State reports whether a token pair is held
	State() core.SessionState

	// Wait blocks until dispatched operations have settled
	Wait()
}

var _ Client = (*service.SessionManager)(nil)
