package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"echoclicker/internal/api/handlers"
	"echoclicker/internal/api/middleware"
	"echoclicker/pkg/auth"
)

// SetupRoutes builds the router. issuer may be nil, which leaves every route
// open.
func SetupRoutes(h *handlers.Handler, issuer *auth.Issuer, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.CORSMiddleware())
	router.Use(gin.Recovery())
	if logger != nil {
		router.Use(middleware.Logger(logger.Named("http")))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.HealthCheck)

		protected := v1.Group("")
		if issuer != nil {
			protected.Use(middleware.AuthMiddleware(issuer))
		}
		{
			protected.GET("/state", h.GetState)
			protected.GET("/ws", h.WebSocket)

			pages := protected.Group("/pages")
			{
				pages.GET("", h.GetPages)
				pages.POST("", h.CreatePage)
			}
			protected.GET("/devices", h.GetDevices)

			recording := protected.Group("/recording")
			{
				recording.POST("/start", h.StartRecording)
				recording.POST("/stop", h.StopRecording)
			}

			scripts := protected.Group("/scripts")
			{
				scripts.POST("/execute", h.ExecuteScript)
				scripts.POST("/parse", h.ParseScript)
				scripts.POST("/format", h.FormatScript)
				scripts.GET("", h.GetScripts)
				scripts.GET("/:name", h.GetScript)
				scripts.PUT("/:name", h.SaveScript)
				scripts.DELETE("/:name", h.DeleteScript)
				scripts.POST("/:name/execute", h.RunScript)
			}

			protected.POST("/selection", h.EnterSelectionMode)

			autoClicker := protected.Group("/autoclicker")
			{
				autoClicker.POST("/start", h.StartAutoClicker)
				autoClicker.POST("/stop", h.StopAutoClicker)
			}

			schedules := protected.Group("/schedules")
			{
				schedules.GET("", h.GetSchedules)
				schedules.POST("", h.CreateSchedule)
				schedules.DELETE("/:id", h.DeleteSchedule)
			}
		}
	}

	return router
}
