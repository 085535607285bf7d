package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/handler"
	"github.com/stemsi/exstem-mock/internal/middleware"
	"github.com/stemsi/exstem-mock/internal/response"
	"github.com/stemsi/exstem-mock/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Section *handler.SectionHandler
	Mock    *handler.MockHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	limiter *middleware.RateLimiter,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Candidate API (JWT + Rate Limit) ───────────────────────────
	api := router.Group("/api/v1")
	api.Use(
		middleware.RequireCandidateJWT(authService),
		limiter.Middleware(),
		middleware.NoStore(),
	)
	{
		sections := api.Group("/sections/:section_id")
		{
			sections.POST("/mount", handlers.Section.MountSection)
			sections.DELETE("/mount", handlers.Section.UnmountSection)
			sections.GET("/state", handlers.Section.GetState)
			sections.PUT("/answers/:question_key", handlers.Section.SetAnswer)
			sections.POST("/bookmarks/:question_key", handlers.Section.ToggleBookmark)
			sections.POST("/start", handlers.Section.Start)
			sections.POST("/pause", handlers.Section.Pause)
			sections.POST("/resume", handlers.Section.Resume)
			sections.POST("/finish", handlers.Section.Finish)
			sections.POST("/review", handlers.Section.Review)
			sections.POST("/retake", handlers.Section.Retake)
			sections.POST("/abandon", handlers.Section.Abandon)
		}

		mocks := api.Group("/mocks/:mock_id")
		{
			mocks.POST("/mount", handlers.Mock.MountMock)
			mocks.GET("/state", handlers.Mock.GetState)
			mocks.POST("/audio-check", handlers.Mock.CompleteAudioCheck)
			mocks.POST("/force-submit", handlers.Mock.ForceSubmit)
		}

		api.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 2. WebSocket Group (Token in Query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/sections/:section_id/stream", handlers.WS.SectionStream)
	}

	return router
}
