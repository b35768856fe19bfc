package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ScorePrecision is the number of fractional digits in the signed score
const ScorePrecision = 3

// FormatScore renders score with exactly ScorePrecision fractional digits.
func FormatScore(score float64) string {
	return decimal.NewFromFloat(score).StringFixed(ScorePrecision)
}

// SignatureMessage builds the "score:timestamp:topic" message that gets signed.
func SignatureMessage(score float64, timestamp int64, topic string) string {
	return FormatScore(score) + ":" + strconv.FormatInt(timestamp, 10) + ":" + topic
}

// Sign returns base64(HMAC-SHA256(secret, message)) for a score submission.
func Sign(secret string, score float64, timestamp int64, topic string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(SignatureMessage(score, timestamp, topic)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature in constant time.
func VerifySignature(secret string, score float64, timestamp int64, topic, signature string) bool {
	expected := Sign(secret, score, timestamp, topic)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// NewScoreSubmission signs score with the timestamp taken from now.
func NewScoreSubmission(secret string, score float64, topic string, now time.Time) ScoreSubmission {
	ts := now.Unix()
	return ScoreSubmission{
		Score:     score,
		Topic:     topic,
		Timestamp: ts,
		Signature: Sign(secret, score, ts, topic),
	}
}
