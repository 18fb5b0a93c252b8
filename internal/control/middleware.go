package control

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/fieldtrack/internal/metrics"
	"github.com/rs/zerolog"
)

// LoggingMiddlewareGin creates Gin middleware for request logging.
func LoggingMiddlewareGin(logger zerolog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		// Process request
		ctx.Next()

		// Log after processing
		logger.Info().
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Str("remote_addr", ctx.ClientIP()).
			Int("status", ctx.Writer.Status()).
			Int("size", ctx.Writer.Size()).
			Msg("Control request")
	}
}

// MetricsMiddlewareGin counts requests by route template and status.
func MetricsMiddlewareGin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ControlRequestsTotal.WithLabelValues(route, strconv.Itoa(ctx.Writer.Status())).Inc()
	}
}
