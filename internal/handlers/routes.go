package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/screen-relay/internal/capture"
	"github.com/mossy-p/screen-relay/internal/signaling"
	"github.com/mossy-p/screen-relay/internal/stream"
)

// Deps are the components the HTTP surface is built on
type Deps struct {
	Sessions    signaling.Store
	Broadcaster *stream.Broadcaster
	Input       InputRouter
	Capture     CaptureController
	Windows     WindowSource
	State       *capture.State
	Transform   capture.HeuristicTransformer
	DebugCoords bool
}

// Register mounts every route on router
func Register(router gin.IRouter, d Deps) {
	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Viewer stream: frames out, input events in
	router.GET("/ws/stream", StreamViewer(d.Broadcaster, d.Input))

	api := router.Group("/api")
	{
		api.POST("/sessions", CreateSession(d.Sessions))
		api.GET("/sessions/:sessionId", GetSession(d.Sessions))
		api.POST("/sessions/:sessionId/offer", SubmitOffer(d.Sessions))
		api.POST("/sessions/:sessionId/answer", SubmitAnswer(d.Sessions))
		api.POST("/sessions/:sessionId/ice", AddICECandidate(d.Sessions))
		api.GET("/offers/latest", LatestOffer(d.Sessions))

		api.GET("/windows", ListWindows(d.Windows))
		api.POST("/capture/window", SwitchWindow(d.Capture, d.State))
		api.POST("/capture/desktop", CaptureDesktop(d.Capture, d.State))
		api.POST("/capture/reset", ResetCapture(d.State))
		api.POST("/capture/display/refresh", RefreshDisplay(d.State))
		api.GET("/capture/info", CaptureInfo(d.State, d.DebugCoords, d.Transform))

		api.GET("/stream/stats", StreamStats(d.Broadcaster))
	}
}
