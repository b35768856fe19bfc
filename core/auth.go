package core

import "time"

// SessionState is the authentication state of a Session
type SessionState int

const (
	// Unauthenticated means no usable token pair is held
	Unauthenticated SessionState = iota
	// Authenticated means both the access and the refresh token are present
	Authenticated
)

func (s SessionState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Credentials identify the application against the leaderboard API
type Credentials struct {
	ApplicationID string // Sent with every call as X-Mona-Application-Id
	APISecret     string // Server-side secret, HMAC key for signed submissions
}

// Session holds the token pair issued by OTP verification
type Session struct {
	AccessToken  string // Short-lived bearer credential
	RefreshToken string // Exchanged for a new access token
}

// State reports whether the session is authorized.
func (s Session) State() SessionState {
	if s.AccessToken != "" && s.RefreshToken != "" {
		return Authenticated
	}
	return Unauthenticated
}

// ScoreSubmission is the signed body of a client score post
type ScoreSubmission struct {
	Score     float64 // Raw score value
	Topic     string  // Optional grouping key, part of the signed message only
	Timestamp int64   // Unix seconds at submission time
	Signature string  // base64(HMAC-SHA256(secret, "score:timestamp:topic"))
}

// Period selects the time window of a top-scores query
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime:
		return true
	}
	return false
}

// Start returns the beginning of the window that contains now.
func (p Period) Start(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodDaily:
		return day
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// Order selects the ranking direction of a top-scores query
type Order string

const (
	OrderHighest Order = "highest"
	OrderLowest  Order = "lowest"
)

// DefaultTopScoresLimit is the number of entries requested when no limit is set
const DefaultTopScoresLimit = 50

// TopScoresQuery holds the optional filters of a top-scores request
type TopScoresQuery struct {
	Featured              bool
	Topic                 string
	Period                Period
	Order                 Order
	StartTime             string
	EndTime               string
	IncludeAllUsersScores bool
	Limit                 int
}

// User is the public profile attached to a score
type User struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// ScoreEntry is one ranked row of a leaderboard
type ScoreEntry struct {
	ID        int64   `json:"id"`
	User      User    `json:"user"`
	Score     float64 `json:"score"`
	Topic     string  `json:"topic"`
	CreatedAt string  `json:"created_at"`
	Rank      int     `json:"rank"`
}

// TopScores is the top-scores response body
type TopScores struct {
	Items []ScoreEntry `json:"items"`
	Count int          `json:"count"`
}
