package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/web/auth"
	"github.com/showroom-auto/showroom/internal/web/response"
)

// SnapshotFunc builds the first message sent to a new client. It runs after
// the client has joined its rooms, so nothing published meanwhile is lost.
type SnapshotFunc func(ctx context.Context) (any, error)

// ActivityLister is implemented by snapshots that embed recent activities.
// Those activities are not delivered a second time from the live stream.
type ActivityLister interface {
	ActivityIDs() []string
}

// Config holds WebSocket configuration
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int

	// AllowedOrigins lists extra origins besides the request host.
	// Requests without an Origin header are accepted.
	AllowedOrigins []string

	EnableCompression bool
}

// DefaultConfig returns default WebSocket configuration
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
}

// Handler upgrades requests and attaches them to a hub
type Handler struct {
	hub      *Hub
	router   *MessageRouter
	upgrader websocket.Upgrader
	snapshot SnapshotFunc
	logger   *zap.Logger
}

// NewHandler creates a Handler. snapshot may be nil.
func NewHandler(hub *Hub, config Config, snapshot SnapshotFunc) *Handler {
	h := &Handler{
		hub:      hub,
		router:   NewMessageRouter(),
		snapshot: snapshot,
		logger:   hub.logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:    config.ReadBufferSize,
		WriteBufferSize:   config.WriteBufferSize,
		EnableCompression: config.EnableCompression,
		CheckOrigin:       checkOrigin(config.AllowedOrigins),
	}
	return h
}

// Router returns the message router so callers can register extra handlers
func (h *Handler) Router() *MessageRouter {
	return h.router
}

// ServeHTTP upgrades the request, sends the snapshot and serves the client
// until it disconnects
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.hub.Done():
		response.RenderServiceUnavailable(w, "live feed is shutting down")
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn, h.hub, h.router, auth.Actor(r.Context()))
	client.awaiting = h.snapshot != nil
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	if h.snapshot != nil {
		if err := h.greet(r.Context(), client); err != nil {
			h.logger.Error("sending feed snapshot", zap.Error(err))
			h.hub.Unregister(client)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot unavailable"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}
	}

	go client.writePump()
	client.readPump()
}

func (h *Handler) greet(ctx context.Context, c *Client) error {
	data, err := h.snapshot(ctx)
	if err != nil {
		return err
	}
	greeting, err := marshalMessage(Message{Type: TypeSnapshot, Data: data})
	if err != nil {
		return err
	}
	var seen []string
	if l, ok := data.(ActivityLister); ok {
		seen = l.ActivityIDs()
	}
	h.hub.greetClient(c, greeting, seen)
	return nil
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
