package service

import (
	"net/http"
	"net/url"
)

// Endpoints of the leaderboard API, relative to the transport's base URL
const (
	pathOTPGenerate  = "/public/auth/otp/generate"
	pathOTPVerify    = "/public/auth/otp/verify"
	pathTokenRefresh = "/public/auth/token/refresh"
	pathSignedScore  = "/public/leaderboards/sdk/score"
	pathUser         = "/public/user/"
)

// Header names defined by the API
const (
	HeaderApplicationID = "X-Mona-Application-Id"
	HeaderAPISecret     = "X-Mona-Api-Secret"
)

func pathTopScores(appID string) string {
	return "/public/leaderboards/" + url.PathEscape(appID) + "/top-scores"
}

func pathServerScores(appID string) string {
	return "/public/leaderboards/" + url.PathEscape(appID) + "/scores"
}

type otpRequest struct {
	Email string `json:"email"`
}

type otpVerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// signedScoreRequest mirrors the SDK endpoint, which takes the timestamp as a string.
// Topic is part of the signed message, so it travels with the body when set.
type signedScoreRequest struct {
	Score     float64 `json:"score"`
	Timestamp string  `json:"timestamp"`
	Signature string  `json:"signature"`
	Topic     string  `json:"topic,omitempty"`
}

type serverScoreRequest struct {
	Username string  `json:"username"`
	Score    float64 `json:"score"`
}

func jsonHeader(appID string) http.Header {
	h := http.Header{}
	h.Set(HeaderApplicationID, appID)
	h.Set("Content-Type", "application/json")
	return h
}

func bearerHeader(appID, accessToken string) http.Header {
	h := jsonHeader(appID)
	h.Set("Authorization", "Bearer "+accessToken)
	return h
}
