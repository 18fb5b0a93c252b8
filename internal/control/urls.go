package control

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps holds dependencies needed for control routes.
type Deps struct {
	Tracker Tracker
	Logger  zerolog.Logger
}

// SetupRoutes registers all control routes with the Gin engine.
func SetupRoutes(r *gin.Engine, deps *Deps) {
	r.Use(LoggingMiddlewareGin(deps.Logger))
	r.Use(MetricsMiddlewareGin())

	views := NewTrackingViews(deps.Tracker, deps.Logger)

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/permissions", views.RequestPermissions)

		api.POST("/tracking/start", views.StartTracking)
		api.POST("/tracking/stop", views.StopTracking)
		api.GET("/tracking/status", views.Status)

		api.GET("/location/current", views.CurrentLocation)

		api.GET("/queue", views.ListQueue)
		api.POST("/queue/sync", views.SyncQueue)

		api.GET("/sessions", views.ListSessions)
	}
}
