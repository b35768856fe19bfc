package sandbox

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/leaderboard/adapters/tokenizer"
)

const (
	headerApplicationID = "X-Mona-Application-Id"
	headerAPISecret     = "X-Mona-Api-Secret"
	subjectKey          = "subject"
)

// RequireApplication rejects calls that do not name the sandbox application
func RequireApplication(applicationID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(headerApplicationID)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "missing application id"})
			return
		}
		if got != applicationID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "unknown application"})
			return
		}
		if appID := c.Param("appId"); appID != "" && appID != applicationID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "application mismatch"})
			return
		}
		c.Next()
	}
}

// BearerAuth validates the access token and stores its subject in the context
func BearerAuth(tokens *tokenizer.JWTTokenizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		if !strings.HasPrefix(auth, "Bearer ") || len(auth) == len("Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid authorization header"})
			return
		}

		subject, err := tokens.ParseAccess(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired token"})
			return
		}

		c.Set(subjectKey, subject)
		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("request_id", c.GetHeader("X-Request-Id")),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
