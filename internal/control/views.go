package control

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/fieldtrack/internal/tracking"
	"github.com/rs/zerolog"
)

// TrackingViews handles tracking API requests.
type TrackingViews struct {
	tracker Tracker
	logger  zerolog.Logger
}

// NewTrackingViews creates a new tracking views instance.
func NewTrackingViews(tracker Tracker, logger zerolog.Logger) *TrackingViews {
	return &TrackingViews{
		tracker: tracker,
		logger:  logger.With().Str("handler", "tracking").Logger(),
	}
}

type userRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// RequestPermissions asks for foreground and background location access.
func (v *TrackingViews) RequestPermissions(ctx *gin.Context) {
	result := v.tracker.RequestPermissions(ctx.Request.Context())
	status := http.StatusOK
	if !result.Granted {
		status = http.StatusForbidden
	}
	ctx.JSON(status, result)
}

// StartTracking requests permissions, starts tracking and returns an
// initial fix when one is available.
func (v *TrackingViews) StartTracking(ctx *gin.Context) {
	var req userRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": tracking.ErrUserIDRequired.Error(),
		})
		return
	}

	perms := v.tracker.RequestPermissions(ctx.Request.Context())
	if !perms.Granted {
		ctx.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   perms.Message,
		})
		return
	}

	// a client disconnect must not abandon a half-applied start
	result := v.tracker.Start(context.WithoutCancel(ctx.Request.Context()), req.UserID)
	if !result.Success {
		v.logger.Error().Str("user_id", req.UserID).Str("error", result.Error).Msg("Failed to start tracking")
		ctx.JSON(http.StatusInternalServerError, result)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":  true,
		"location": v.tracker.CurrentLocation(ctx.Request.Context()),
	})
}

// StopTracking stops tracking for a user.
func (v *TrackingViews) StopTracking(ctx *gin.Context) {
	var req userRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": tracking.ErrUserIDRequired.Error(),
		})
		return
	}

	result := v.tracker.Stop(context.WithoutCancel(ctx.Request.Context()), req.UserID)
	if !result.Success {
		v.logger.Error().Str("user_id", req.UserID).Str("error", result.Error).Msg("Failed to stop tracking")
		ctx.JSON(http.StatusInternalServerError, result)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// Status returns the tracking state of the device.
func (v *TrackingViews) Status(ctx *gin.Context) {
	status, err := v.tracker.Status(ctx.Request.Context())
	if err != nil {
		v.logger.Error().Err(err).Msg("Failed to read tracking status")
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to read tracking status",
		})
		return
	}

	ctx.JSON(http.StatusOK, status)
}

// CurrentLocation returns a one-shot fix.
func (v *TrackingViews) CurrentLocation(ctx *gin.Context) {
	coords := v.tracker.CurrentLocation(ctx.Request.Context())
	if coords == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "location_unavailable",
			"message": "Current location is unavailable",
		})
		return
	}

	ctx.JSON(http.StatusOK, coords)
}

// ListQueue returns the samples waiting for delivery.
func (v *TrackingViews) ListQueue(ctx *gin.Context) {
	entries, err := v.tracker.QueuedSamples(ctx.Request.Context())
	if err != nil {
		v.logger.Error().Err(err).Msg("Failed to read queue")
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to read queue",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// SyncQueue drains the queue once.
func (v *TrackingViews) SyncQueue(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, v.tracker.SyncOffline(ctx.Request.Context()))
}

// ListSessions returns a user's recent work sessions.
func (v *TrackingViews) ListSessions(ctx *gin.Context) {
	userID := ctx.Query("user_id")
	if userID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": tracking.ErrUserIDRequired.Error(),
		})
		return
	}

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	sessions, err := v.tracker.RecentSessions(ctx.Request.Context(), userID, limit)
	if err != nil {
		if errors.Is(err, tracking.ErrUserIDRequired) {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		v.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list sessions")
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to retrieve sessions",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
