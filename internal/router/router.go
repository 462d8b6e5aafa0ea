package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/openprep/testprep-backend/internal/config"
	"github.com/openprep/testprep-backend/internal/handler"
	"github.com/openprep/testprep-backend/internal/middleware"
	"github.com/openprep/testprep-backend/internal/response"
	"github.com/openprep/testprep-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	LearnerPortal *handler.LearnerPortalHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)

		// Authenticated profile routes
		auth.POST("/logout", middleware.RequireJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Learner Group (JWT + Session) ──────────────────────────────
	learnerAPI := router.Group("/api/v1")
	learnerAPI.Use(
		middleware.RequireJWT(authService),
		middleware.CheckSession(authService),
	)
	{
		learnerAPI.GET("/tests", handlers.LearnerPortal.ListTests)
		learnerAPI.POST("/tests/:test_id/attempt", handlers.LearnerPortal.StartAttempt)
		learnerAPI.GET("/tests/:test_id/attempt/paper", handlers.LearnerPortal.GetPaper)
		learnerAPI.GET("/tests/:test_id/attempt/state", handlers.LearnerPortal.GetState)
		learnerAPI.POST("/tests/:test_id/attempt/answers", handlers.LearnerPortal.SelectAnswer)
		learnerAPI.POST("/tests/:test_id/attempt/submit", handlers.LearnerPortal.RequestSubmit)
		learnerAPI.POST("/tests/:test_id/attempt/submit/confirm", handlers.LearnerPortal.ConfirmSubmit)
		learnerAPI.POST("/tests/:test_id/attempt/submit/cancel", handlers.LearnerPortal.CancelSubmit)
		learnerAPI.GET("/tests/:test_id/result", handlers.LearnerPortal.GetResult)
		learnerAPI.GET("/tests/:test_id/leaderboard", handlers.LearnerPortal.GetLeaderboard)
		learnerAPI.GET("/results", handlers.LearnerPortal.ListMyResults)
		learnerAPI.GET("/attempts/:attempt_id", handlers.LearnerPortal.GetAttemptByID)
	}

	// ─── 3. WebSocket Group (WS Auth) ──────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/tests/:test_id/attempt/stream", handlers.WS.AttemptStream)
	}

	return router
}
