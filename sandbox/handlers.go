package sandbox

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
)

// GenerateOTP issues a one-time password for the email
func (s *Server) GenerateOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	code := s.cfg.FixedOTP
	if code == "" {
		var err error
		if code, err = randomCode(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to generate code"})
			return
		}
	}
	if err := s.codes.Set(c.Request.Context(), otpKey(req.Email), code, s.cfg.OTPTTL); err != nil {
		s.logger.Error("store otp", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to store code"})
		return
	}

	// The sandbox has no mailer; the code is delivered through the log
	s.logger.Info("otp issued", zap.String("email", req.Email), zap.String("otp", code))
	c.JSON(http.StatusOK, gin.H{"detail": "OTP sent"})
}

// VerifyOTP exchanges a valid code for an access and a refresh token
func (s *Server) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		OTP   string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	stored, err := s.codes.Get(ctx, otpKey(req.Email))
	if err != nil {
		if errors.Is(err, ports.ErrCodeNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid or expired code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to load code"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(req.OTP)) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid or expired code"})
		return
	}
	_ = s.codes.Delete(ctx, otpKey(req.Email))

	access, err := s.tokens.IssueAccess(req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to issue token"})
		return
	}
	refresh, err := s.tokens.IssueRefresh(req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access": access, "refresh": refresh})
}

// Refresh issues a new access token; the refresh token is not rotated
func (s *Server) Refresh(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	subject, err := s.tokens.ParseRefresh(req.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired refresh token"})
		return
	}
	access, err := s.tokens.IssueAccess(subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access": access})
}

// SubmitSignedScore accepts a score signed with the application secret
func (s *Server) SubmitSignedScore(c *gin.Context) {
	var req struct {
		Score     *float64 `json:"score" binding:"required"`
		Timestamp string   `json:"timestamp" binding:"required"`
		Signature string   `json:"signature" binding:"required"`
		Topic     string   `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid timestamp"})
		return
	}
	now := s.now()
	if skew := now.Sub(time.Unix(ts, 0)); skew > s.cfg.MaxClockSkew || skew < -s.cfg.MaxClockSkew {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Timestamp outside allowed window"})
		return
	}
	if !core.VerifySignature(s.cfg.APISecret, *req.Score, ts, req.Topic, req.Signature) {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Invalid signature"})
		return
	}

	id := s.board.Add(userFor(c.GetString(subjectKey)), *req.Score, req.Topic, now)
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// SubmitServerScore accepts a score authenticated by the API secret header
func (s *Server) SubmitServerScore(c *gin.Context) {
	secret := c.GetHeader(headerAPISecret)
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.APISecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid API secret"})
		return
	}

	var req struct {
		Username string   `json:"username" binding:"required"`
		Score    *float64 `json:"score" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	user := core.User{Username: req.Username, Name: req.Username}
	id := s.board.Add(user, *req.Score, "", s.now())
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// TopScores ranks the stored scores
func (s *Server) TopScores(c *gin.Context) {
	f := Filter{
		Topic:     c.Query("topic"),
		Order:     core.Order(c.DefaultQuery("order", string(core.OrderHighest))),
		AllScores: c.Query("include_all_users_scores") == "true",
		Limit:     core.DefaultTopScoresLimit,
	}
	if f.Order != core.OrderHighest && f.Order != core.OrderLowest {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid order"})
		return
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid limit"})
			return
		}
		f.Limit = n
	}
	if raw := c.Query("period"); raw != "" {
		p := core.Period(raw)
		if !p.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid period"})
			return
		}
		f.From = p.Start(s.now())
	}
	var err error
	if f.From, err = timeBound(c.Query("starttime"), f.From); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid starttime"})
		return
	}
	if f.To, err = timeBound(c.Query("endtime"), time.Time{}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid endtime"})
		return
	}

	c.JSON(http.StatusOK, s.board.Top(f))
}

// User returns the profile of the token's subject
func (s *Server) User(c *gin.Context) {
	c.JSON(http.StatusOK, userFor(c.GetString(subjectKey)))
}

func otpKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userFor(email string) core.User {
	name := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		name = email[:i]
	}
	return core.User{Username: name, Name: name}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// timeBound parses an RFC 3339 bound, keeping def when raw is empty
func timeBound(raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, raw)
}
