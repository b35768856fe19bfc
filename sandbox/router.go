package sandbox

import (
	"github.com/gin-gonic/gin"
)

// Router sets up the Gin router
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.logger))

	public := router.Group("/public")
	public.Use(RequireApplication(s.cfg.ApplicationID))

	// Auth routes
	auth := public.Group("/auth")
	{
		auth.POST("/otp/generate", s.GenerateOTP)
		auth.POST("/otp/verify", s.VerifyOTP)
		auth.POST("/token/refresh", s.Refresh)
		auth.GET("/token/refresh", s.Refresh)
	}

	// Leaderboard routes
	boards := public.Group("/leaderboards")
	{
		boards.POST("/sdk/score", BearerAuth(s.tokens), s.SubmitSignedScore)
		boards.POST("/:appId/scores", s.SubmitServerScore)
		boards.GET("/:appId/top-scores", s.TopScores)
	}

	// Protected user routes
	public.GET("/user/", BearerAuth(s.tokens), s.User)

	return router
}
