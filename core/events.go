package core

import "time"

// EventType names an outcome reported by the session manager
type EventType string

const (
	EventOTPSent        EventType = "otp.sent"
	EventOTPVerified    EventType = "otp.verified"
	EventTokenRefreshed EventType = "token.refreshed"
	EventScorePosted    EventType = "score.posted"
	EventScoresReceived EventType = "scores.received"
	EventUserReceived   EventType = "user.received"
	EventSignedOut      EventType = "session.signed_out"
	EventFailed         EventType = "operation.failed"
)

// Operation names used in events and logs
const (
	OpRequestOTP  = "request_otp"
	OpVerifyOTP   = "verify_otp"
	OpRefresh     = "refresh_access_token"
	OpSubmitScore = "submit_score"
	OpServerScore = "server_submit_score"
	OpTopScores   = "top_scores"
	OpGetUser     = "get_user"
	OpSignOut     = "sign_out"
)

// Event is delivered to observers once an operation settles.
// Tokens and secrets are never part of an event.
type Event struct {
	ID     string
	Type   EventType
	Op     string
	At     time.Time
	Err    error      // Set for EventFailed, and for EventSignedOut caused by a rejected refresh
	Scores *TopScores // Set for EventScoresReceived
	User   *User      // Set for EventUserReceived
}
