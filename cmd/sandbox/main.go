package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/leaderboard/adapters/store"
	"github.com/layer-3/leaderboard/config"
	"github.com/layer-3/leaderboard/ports"
	"github.com/layer-3/leaderboard/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := config.NewLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.ApplicationID == "" || cfg.APISecret == "" {
		logger.Fatal("LEADERBOARD_APPLICATION_ID and LEADERBOARD_API_SECRET are required")
	}

	// Generate a signing key unless one is configured
	jwtSecret := []byte(cfg.SandboxJWTSecret)
	if len(jwtSecret) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			logger.Fatal("generate jwt key", zap.Error(err))
		}
		jwtSecret = []byte(hex.EncodeToString(key))
	}

	var codes ports.CodeStore = store.NewMemoryStore()
	if cfg.SandboxRedisURL != "" {
		opts, err := redis.ParseURL(cfg.SandboxRedisURL)
		if err != nil {
			logger.Fatal("parse redis url", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
		codes = store.NewRedisStore(redisClient)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := sandbox.New(sandbox.Config{
		ApplicationID: cfg.ApplicationID,
		APISecret:     cfg.APISecret,
		JWTSecret:     jwtSecret,
		AccessTTL:     cfg.SandboxAccessTTL,
		RefreshTTL:    cfg.SandboxRefreshTTL,
		OTPTTL:        cfg.SandboxOTPTTL,
		FixedOTP:      cfg.SandboxFixedOTP,
		MaxClockSkew:  cfg.SandboxMaxClockSkew,
	}, codes, logger)

	httpServer := &http.Server{
		Addr:         cfg.SandboxAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("sandbox listening", zap.String("addr", cfg.SandboxAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
