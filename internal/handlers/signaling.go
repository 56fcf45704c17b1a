package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/screen-relay/internal/logger"
	"github.com/mossy-p/screen-relay/internal/models"
	"github.com/mossy-p/screen-relay/internal/signaling"
)

// CreateSession allocates a new signaling session
func CreateSession(store signaling.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := store.Create(c.Request.Context())
		if err != nil {
			logger.Errorf("Failed to create session: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		logger.Infof("Session created: %s", id)
		c.JSON(http.StatusCreated, models.CreateSessionResponse{SessionID: id})
	}
}

// GetSession returns the full session record
func GetSession(store signaling.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := store.Get(c.Request.Context(), c.Param("sessionId"))
		if errors.Is(err, signaling.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			logger.Errorf("Failed to load session: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}

		c.JSON(http.StatusOK, sess)
	}
}

// SubmitOffer stores the capture side's offer. The body is the session
// description itself: {"type": "offer", "sdp": "..."}; type may be omitted.
func SubmitOffer(store signaling.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var offer webrtc.SessionDescription
		if err := c.ShouldBindJSON(&offer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session description"})
			return
		}
		if offer.Type == webrtc.SDPTypeUnknown {
			offer.Type = webrtc.SDPTypeOffer
		}
		if err := signaling.ValidateOffer(offer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("sessionId")
		if !storeResult(c, store.SubmitOffer(c.Request.Context(), id, offer)) {
			return
		}

		logger.Infof("Offer received for session %s", id)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// SubmitAnswer stores the viewer's answer
func SubmitAnswer(store signaling.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var answer webrtc.SessionDescription
		if err := c.ShouldBindJSON(&answer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session description"})
			return
		}
		if answer.Type == webrtc.SDPTypeUnknown {
			answer.Type = webrtc.SDPTypeAnswer
		}
		if err := signaling.ValidateAnswer(answer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("sessionId")
		if !storeResult(c, store.SubmitAnswer(c.Request.Context(), id, answer)) {
			return
		}

		logger.Infof("Answer received for session %s", id)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// AddICECandidate appends one trickled candidate
func AddICECandidate(store signaling.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var candidate webrtc.ICECandidateInit
		if err := c.ShouldBindJSON(&candidate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ICE candidate"})
			return
		}

		id := c.Param("sessionId")
		if !storeResult(c, store.AddICECandidate(c.Request.Context(), id, candidate)) {
			return
		}

		logger.Debugf("ICE candidate added to session %s", id)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// LatestOffer returns the most recent offer, or {"offer": null} if none
func LatestOffer(store signaling.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending, err := store.LatestPendingOffer(c.Request.Context())
		if err != nil {
			logger.Errorf("Failed to load latest offer: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load latest offer"})
			return
		}
		if pending == nil {
			c.JSON(http.StatusOK, gin.H{"offer": nil})
			return
		}

		c.JSON(http.StatusOK, pending)
	}
}

// storeResult writes the error response for a failed mutation. Unknown
// sessions are a client error.
func storeResult(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, signaling.ErrNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session not found"})
	default:
		logger.Errorf("Signaling store error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update session"})
	}
	return false
}
