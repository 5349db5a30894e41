package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/broadcast"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/command"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// EventSource hands out lifecycle subscriptions.
type EventSource interface {
	Subscribe() (lifecycle.Snapshot, *broadcast.Subscription[lifecycle.Event])
}

// Handler streams lifecycle events and backend log lines over WebSocket.
type Handler struct {
	events EventSource
	logs   *broadcast.Hub[string]
	log    *zap.Logger
	policy *bluemonday.Policy
	// origins gates the log stream.
	origins command.OriginPolicy

	eventUpgrader websocket.Upgrader
	logUpgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(events EventSource, logs *broadcast.Hub[string], logger *zap.Logger) *Handler {
	h := &Handler{
		events: events,
		logs:   logs,
		log:    logging.OrNop(logger),
		policy: bluemonday.StrictPolicy(),
		eventUpgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	h.logUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return h.origins.Trusted(r.Header.Get("Origin"))
		},
	}
	return h
}

// WithOrigins sets the policy that gates the log stream.
func (h *Handler) WithOrigins(policy command.OriginPolicy) *Handler {
	h.origins = policy
	return h
}

// HandleEvents streams lifecycle events as JSON. The first frame carries
// the state at subscription time; every later transition follows in order.
func (h *Handler) HandleEvents(c *gin.Context) {
	conn, err := h.eventUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.String("stream", "events"), zap.Error(err))
		return
	}
	defer conn.Close()

	snap, sub := h.events.Subscribe()
	defer sub.Close()

	initial := lifecycle.Event{Type: lifecycle.EventServerStatus, Data: string(snap.Status), State: &snap}
	if err := writeJSON(conn, initial); err != nil {
		return
	}

	h.pump(c.Request.Context(), conn, "events", sub.ID().String(), func(ctx context.Context) error {
		ev, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		return writeJSON(conn, ev)
	})
}

// HandleLogs streams backend output as text frames, one line per frame.
// Only pages on this machine may connect.
func (h *Handler) HandleLogs(c *gin.Context) {
	if !h.origins.Trusted(c.GetHeader("Origin")) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	conn, err := h.logUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.String("stream", "logs"), zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.logs.Subscribe()
	defer sub.Close()

	h.pump(c.Request.Context(), conn, "logs", sub.ID().String(), func(ctx context.Context) error {
		line, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		return writeText(conn, h.Sanitize(line))
	})
}

// Sanitize strips markup from a log line before it leaves the process.
func (h *Handler) Sanitize(line string) string {
	return h.policy.Sanitize(line)
}

// pump runs next until it fails or the peer goes away. Only pump writes
// data frames; pings go out through WriteControl.
func (h *Handler) pump(parent context.Context, conn *websocket.Conn, stream, subscriber string, next func(context.Context) error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log := h.log.With(zap.String("stream", stream), zap.String("subscriber", subscriber))
	log.Debug("WebSocket client connected")

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		if err := next(ctx); err != nil {
			if errors.Is(err, broadcast.ErrSlowSubscriber) {
				log.Warn("WebSocket client fell behind, disconnecting")
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"),
					time.Now().Add(writeWait))
			}
			log.Debug("WebSocket client disconnected", zap.Error(err))
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func writeText(conn *websocket.Conn, s string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(s))
}
