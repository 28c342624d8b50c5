package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/orpheus-edu/orpheus-core/internal/handlers"
)

type RouterConfig struct {
	ServiceName   string
	PromptHandler *handlers.PromptHandler
	SlidesHandler *handlers.SlidesHandler
	StatusHandler *handlers.StatusHandler
	// VideoRoot, when set, is served at /videos so rendered slide videos are
	// reachable under PUBLIC_VIDEOS_BASE.
	VideoRoot string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	if cfg.VideoRoot != "" {
		router.Static("/videos", cfg.VideoRoot)
	}

	// Prompt pipeline
	core := router.Group("/core")
	{
		core.POST("/prompt", cfg.PromptHandler.SubmitPrompt)
	}

	// Slides sub-pipeline
	slides := router.Group("/v1/slides")
	{
		slides.POST("/generate", cfg.SlidesHandler.Generate)
		slides.GET("/:promptId/status", cfg.SlidesHandler.GetStatus)
	}

	// Status store surface
	statusGroup := router.Group("/status")
	{
		statusGroup.GET("/:promptId", cfg.StatusHandler.GetStatus)
		statusGroup.PATCH("/:promptId/update", cfg.StatusHandler.PatchStatus)
		statusGroup.GET("/:promptId/live", cfg.StatusHandler.LiveStatus)
	}

	return router
}
