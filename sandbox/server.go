// Package sandbox is a local stand-in for the leaderboard API. It implements
// the endpoints the session manager talks to so the client can be exercised
// end to end without network access or real credentials.
package sandbox

import (
	"time"

	"go.uber.org/zap"

	"github.com/layer-3/leaderboard/adapters/tokenizer"
	"github.com/layer-3/leaderboard/ports"
)

// Config holds the sandbox settings
type Config struct {
	ApplicationID string
	APISecret     string
	JWTSecret     []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	OTPTTL        time.Duration
	FixedOTP      string // When set every generated code is this value
	MaxClockSkew  time.Duration
}

func (c Config) withDefaults() Config {
	if c.AccessTTL <= 0 {
		c.AccessTTL = 5 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 5 * 24 * time.Hour
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = 10 * time.Minute
	}
	if c.MaxClockSkew <= 0 {
		c.MaxClockSkew = 5 * time.Minute
	}
	return c
}

// Server holds the sandbox state
type Server struct {
	cfg    Config
	codes  ports.CodeStore
	tokens *tokenizer.JWTTokenizer
	board  *Board
	logger *zap.Logger
	now    func() time.Time
}

// New creates a sandbox backed by codes for one-time passwords
func New(cfg Config, codes ports.CodeStore, logger *zap.Logger) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		codes:  codes,
		tokens: tokenizer.NewJWTTokenizer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL),
		board:  NewBoard(),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source of the server and its tokenizer
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	s.tokens = s.tokens.WithClock(now)
	return s
}

// Board exposes the in-memory scores
func (s *Server) Board() *Board {
	return s.board
}
