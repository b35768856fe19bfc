package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string

	// Client
	BaseURL        string
	ApplicationID  string
	APISecret      string
	HTTPTimeout    time.Duration
	RefreshMethod  string
	RetryPolicy    string
	EventsRedisURL string
	EventsTopic    string

	// Sandbox
	SandboxAddr         string
	SandboxRedisURL     string
	SandboxJWTSecret    string
	SandboxAccessTTL    time.Duration
	SandboxRefreshTTL   time.Duration
	SandboxOTPTTL       time.Duration
	SandboxFixedOTP     string
	SandboxMaxClockSkew time.Duration
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:         getEnv("APP_ENV", "development"),
		BaseURL:             getEnv("LEADERBOARD_BASE_URL", "https://api.monaverse.com"),
		ApplicationID:       strings.TrimSpace(os.Getenv("LEADERBOARD_APPLICATION_ID")),
		APISecret:           os.Getenv("LEADERBOARD_API_SECRET"),
		HTTPTimeout:         getDuration("LEADERBOARD_HTTP_TIMEOUT", 10*time.Second),
		RefreshMethod:       strings.ToUpper(getEnv("LEADERBOARD_REFRESH_METHOD", http.MethodPost)),
		RetryPolicy:         getEnv("LEADERBOARD_RETRY_POLICY", "never"),
		EventsRedisURL:      os.Getenv("LEADERBOARD_EVENTS_REDIS_URL"),
		EventsTopic:         getEnv("LEADERBOARD_EVENTS_TOPIC", "leaderboard.session"),
		SandboxAddr:         getEnv("SANDBOX_ADDR", ":9000"),
		SandboxRedisURL:     os.Getenv("SANDBOX_REDIS_URL"),
		SandboxJWTSecret:    os.Getenv("SANDBOX_JWT_SECRET"),
		SandboxAccessTTL:    getDuration("SANDBOX_ACCESS_TTL", 5*time.Minute),
		SandboxRefreshTTL:   getDuration("SANDBOX_REFRESH_TTL", 120*time.Hour),
		SandboxOTPTTL:       getDuration("SANDBOX_OTP_TTL", 10*time.Minute),
		SandboxFixedOTP:     os.Getenv("SANDBOX_FIXED_OTP"),
		SandboxMaxClockSkew: getDuration("SANDBOX_MAX_CLOCK_SKEW", 5*time.Minute),
	}

	if cfg.RefreshMethod != http.MethodGet && cfg.RefreshMethod != http.MethodPost {
		return Config{}, fmt.Errorf("LEADERBOARD_REFRESH_METHOD must be GET or POST")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("LEADERBOARD_HTTP_TIMEOUT must be positive")
	}

	return cfg, nil
}

// NewLogger builds a development logger outside production.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are seconds
	if n := getInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
