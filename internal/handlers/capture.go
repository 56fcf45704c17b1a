package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/screen-relay/internal/capture"
	"github.com/mossy-p/screen-relay/internal/logger"
	"github.com/mossy-p/screen-relay/internal/models"
)

// CaptureController asks the capture process to change what it captures
type CaptureController interface {
	CaptureDesktop(ctx context.Context) error
	CaptureWindow(ctx context.Context, windowID int) error
}

// WindowSource enumerates capturable windows
type WindowSource interface {
	List(ctx context.Context) ([]models.Window, error)
}

// ListWindows returns the window enumeration tool's records unchanged
func ListWindows(windows WindowSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := windows.List(c.Request.Context())
		if errors.Is(err, capture.ErrNoWindowTool) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Window listing is not configured"})
			return
		}
		if err != nil {
			logger.Errorf("Window list error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get windows"})
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

// SwitchWindow starts window capture and, once the capture process
// accepts, routes input to that window
func SwitchWindow(ctrl CaptureController, state *capture.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SwitchWindowRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cgWindowID required"})
			return
		}

		windowID := int(req.CGWindowID)

		if err := ctrl.CaptureWindow(c.Request.Context(), windowID); err != nil {
			upstreamError(c, "Failed to switch to window capture", err)
			return
		}
		if err := state.SwitchToWindow(windowID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logger.Infof("Capture switched to window %d", windowID)
		c.JSON(http.StatusOK, gin.H{
			"status":     "window_capture_started",
			"cgWindowID": windowID,
		})
	}
}

// CaptureDesktop starts full-desktop capture
func CaptureDesktop(ctrl CaptureController, state *capture.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ctrl.CaptureDesktop(c.Request.Context()); err != nil {
			upstreamError(c, "Failed to start desktop capture", err)
			return
		}
		state.ResetToDesktop()

		logger.Infof("Capture switched to desktop")
		c.JSON(http.StatusOK, gin.H{"status": "desktop_capture_started", "mode": models.CaptureDesktop})
	}
}

// ResetCapture only resets the relay's idea of the capture mode
func ResetCapture(state *capture.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		state.ResetToDesktop()
		logger.Infof("Capture mode reset to desktop")
		c.JSON(http.StatusOK, gin.H{"status": "reset", "mode": models.CaptureDesktop})
	}
}

// RefreshDisplay drops cached display metrics and fetches them again
func RefreshDisplay(state *capture.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		state.InvalidateDisplay()
		m := state.Display(c.Request.Context())
		_, cached := state.CachedDisplay()

		c.JSON(http.StatusOK, gin.H{
			"status":        "refreshed",
			"displayInfo":   m,
			"displayCached": cached,
		})
	}
}

// CaptureInfo reports what coordinate transforms currently use
func CaptureInfo(state *capture.State, debug bool, offsets capture.HeuristicTransformer) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := state.Current()
		display, cached := state.CachedDisplay()
		if !cached {
			display = state.Display(c.Request.Context())
			_, cached = state.CachedDisplay()
		}

		info := models.CaptureInfo{
			CaptureMode:   target.Mode,
			DisplayInfo:   display,
			DisplayCached: cached,
			DebugMode:     debug,
			CalibrationOffsets: models.Point{
				X: float64(offsets.OffsetX),
				Y: float64(offsets.OffsetY),
			},
		}
		if target.Mode == models.CaptureWindow {
			id := target.WindowID
			info.WindowID = &id
		}

		c.JSON(http.StatusOK, info)
	}
}

func upstreamError(c *gin.Context, msg string, err error) {
	logger.Warnf("%s: %v", msg, err)
	if errors.Is(err, capture.ErrUpstreamUnavailable) {
		c.JSON(http.StatusBadGateway, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
