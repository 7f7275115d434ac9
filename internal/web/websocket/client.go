package websocket

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Client messages are small control frames
	maxMessageSize = 4 * 1024

	sendBuffer = 64
)

// Client is one live-feed connection
type Client struct {
	ID   string
	User string

	conn         *websocket.Conn
	hub          *Hub
	router       *MessageRouter
	send         chan []byte
	initialRooms []string

	// Until the snapshot is sent, room messages are held instead of queued.
	// seen holds the activity IDs the snapshot already carried. Both are
	// owned by the hub's Run goroutine.
	awaiting bool
	held     []roomMessage
	seen     map[string]struct{}

	connectedAt time.Time
	logger      *zap.Logger
}

func newClient(conn *websocket.Conn, hub *Hub, router *MessageRouter, user string) *Client {
	id := domain.NewID().String()
	return &Client{
		ID:           id,
		User:         user,
		conn:         conn,
		hub:          hub,
		router:       router,
		send:         make(chan []byte, sendBuffer),
		initialRooms: []string{RoomActivity, RoomInventory},
		connectedAt:  time.Now(),
		logger:       hub.logger.With(zap.String("client_id", id)),
	}
}

// Send queues msg for this client only
func (c *Client) Send(msg Message) {
	if err := c.hub.sendTo(c, msg); err != nil {
		c.logger.Error("encoding message", zap.Error(err))
	}
}

// SendError reports a failed client message
func (c *Client) SendError(message string) {
	c.Send(Message{Type: TypeError, Data: map[string]string{"message": message}})
}

// readPump reads client messages until the connection fails. It unregisters
// the client on exit.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if err := c.router.Dispatch(c, raw); err != nil {
			c.logger.Debug("rejected client message", zap.Error(err))
			c.SendError(err.Error())
		}
	}
}

// writePump writes queued messages and pings until the hub closes the send
// channel or a write fails
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("websocket write failed", zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// duplicate reports whether key was already delivered in the snapshot
func (c *Client) duplicate(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := c.seen[key]; ok {
		delete(c.seen, key)
		return true
	}
	return false
}

// ConnectionDuration returns how long the client has been connected
func (c *Client) ConnectionDuration() time.Duration {
	return time.Since(c.connectedAt)
}
