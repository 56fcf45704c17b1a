package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/screen-relay/internal/input"
	"github.com/mossy-p/screen-relay/internal/logger"
	"github.com/mossy-p/screen-relay/internal/models"
	"github.com/mossy-p/screen-relay/internal/stream"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 << 10

	// inputQueueSize bounds input events waiting for the capture process
	inputQueueSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// InputRouter handles one decoded viewer input event
type InputRouter interface {
	Route(ctx context.Context, ev models.InputEvent) error
}

// viewerConn pairs a websocket with its broadcaster queue and its pending
// input events
type viewerConn struct {
	viewer *stream.Viewer
	conn   *websocket.Conn
	input  chan models.InputEvent
}

// StreamViewer upgrades to a websocket that carries binary frames to the
// viewer and JSON input events from it
func StreamViewer(b *stream.Broadcaster, router InputRouter) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warnf("Failed to upgrade connection: %v", err)
			return
		}

		vc := &viewerConn{
			viewer: b.Join(),
			conn:   conn,
			input:  make(chan models.InputEvent, inputQueueSize),
		}
		logger.Infof("Viewer %s connected from %s (%d viewers)", vc.viewer.ID, c.ClientIP(), b.ViewerCount())

		ctx, cancel := context.WithCancel(context.Background())
		go vc.writePump()
		go vc.inputPump(ctx, router)
		go vc.readPump(b, cancel)
	}
}

// readPump queues input events until the connection drops. It never waits
// on the capture process.
func (vc *viewerConn) readPump(b *stream.Broadcaster, cancel context.CancelFunc) {
	defer func() {
		close(vc.input)
		cancel()
		b.Leave(vc.viewer)
		vc.conn.Close()
		logger.Infof("Viewer %s disconnected (%d viewers)", vc.viewer.ID, b.ViewerCount())
	}()

	vc.conn.SetReadLimit(maxMessageSize)
	vc.conn.SetReadDeadline(time.Now().Add(pongWait))
	vc.conn.SetPongHandler(func(string) error {
		vc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := vc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("WebSocket error: %v", err)
			}
			return
		}
		vc.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			logger.Debugf("Ignoring binary message from viewer %s", vc.viewer.ID)
			continue
		}

		ev, err := input.ParseEvent(message)
		if err != nil {
			logger.Warnf("Dropping message from viewer %s: %v", vc.viewer.ID, err)
			continue
		}

		vc.enqueue(ev)
	}
}

// enqueue hands ev to the input pump, dropping it when the queue is full.
func (vc *viewerConn) enqueue(ev models.InputEvent) bool {
	select {
	case vc.input <- ev:
		return true
	default:
		logger.Warnf("Input queue full for viewer %s, dropping %s", vc.viewer.ID, ev.Type)
		return false
	}
}

// inputPump routes one viewer's input events in arrival order. Each command
// waits at most for the capture client timeout and is never retried.
func (vc *viewerConn) inputPump(ctx context.Context, router InputRouter) {
	for ev := range vc.input {
		if ctx.Err() != nil {
			continue
		}
		if err := router.Route(ctx, ev); err != nil {
			if errors.Is(err, input.ErrMalformedInput) {
				logger.Warnf("Dropping input from viewer %s: %v", vc.viewer.ID, err)
			} else {
				logger.Warnf("Input %s not delivered: %v", ev.Type, err)
			}
		}
	}
}

// writePump sends queued frames and keepalive pings
func (vc *viewerConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		vc.conn.Close()
	}()

	for {
		select {
		case frame := <-vc.viewer.Frames():
			vc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := vc.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logger.Debugf("Failed to write frame to viewer %s: %v", vc.viewer.ID, err)
				return
			}

		case <-vc.viewer.Done():
			vc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			vc.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			vc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := vc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// StreamStats reports broadcaster counters
func StreamStats(b *stream.Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, b.Stats())
	}
}
