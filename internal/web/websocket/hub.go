// Package websocket pushes the back-office live feed to connected admins.
// Clients join rooms and receive every message broadcast to them.
package websocket

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/feed"
)

type roomMessage struct {
	room string
	data []byte
	// key identifies the activity carried, if any
	key string
}

type greeting struct {
	client *Client
	data   []byte
	seen   []string
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub tracks connected clients and their rooms. A single Run goroutine owns
// every client's send channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
	greet      chan greeting
	direct     chan directMessage

	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// NewHub creates a hub; call Run to start it
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 64),
		greet:      make(chan greeting),
		direct:     make(chan directMessage, 64),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx ends. On exit every
// client's send channel is closed, which ends its write pump.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			for _, room := range c.initialRooms {
				h.addLocked(c, room)
			}
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("client_id", c.ID), zap.String("user", c.User))

		case c := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()

		case m := <-h.broadcast:
			h.deliver(m)

		case g := <-h.greet:
			h.mu.Lock()
			h.greetLocked(g)
			h.mu.Unlock()

		case m := <-h.direct:
			h.mu.Lock()
			if _, ok := h.clients[m.client]; ok {
				h.sendLocked(m.client, m.data)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) deliver(m roomMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[m.room] {
		if c.awaiting {
			// the greeting and everything held must fit the send buffer
			if len(c.held) >= cap(c.send)-1 {
				h.logger.Warn("dropping client that fell behind before its snapshot", zap.String("client_id", c.ID))
				h.removeLocked(c)
				continue
			}
			c.held = append(c.held, m)
			continue
		}
		if c.duplicate(m.key) {
			continue
		}
		h.sendLocked(c, m.data)
	}
}

// greetLocked sends the snapshot, then whatever was held while it was built,
// minus the activities the snapshot already contains
func (h *Hub) greetLocked(g greeting) {
	c := g.client
	if _, ok := h.clients[c]; !ok {
		return
	}
	c.seen = make(map[string]struct{}, len(g.seen))
	for _, key := range g.seen {
		c.seen[key] = struct{}{}
	}
	held := c.held
	c.held = nil
	c.awaiting = false

	if !h.sendLocked(c, g.data) {
		return
	}
	for _, m := range held {
		if c.duplicate(m.key) {
			continue
		}
		if !h.sendLocked(c, m.data) {
			return
		}
	}
}

// sendLocked queues data for c and drops the client when its buffer is full
func (h *Hub) sendLocked(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		h.logger.Warn("dropping slow client", zap.String("client_id", c.ID))
		h.removeLocked(c)
		return false
	}
}

func (h *Hub) addLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
	h.logger.Debug("client unregistered", zap.String("client_id", c.ID), zap.Duration("connected", c.ConnectionDuration()))
}

func (h *Hub) shutdown() {
	h.once.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// Done is closed once the hub stops accepting clients
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until Run has returned
func (h *Hub) Wait() {
	<-h.stopped
}

// Register adds c to the hub. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c and closes its send channel
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast sends msg to every client in room
func (h *Hub) Broadcast(room string, msg Message) error {
	return h.broadcastKeyed(room, msg, "")
}

func (h *Hub) broadcastKeyed(room string, msg Message, key string) error {
	data, err := marshalMessage(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- roomMessage{room: room, data: data, key: key}:
	case <-h.done:
	}
	return nil
}

// greetClient releases a registered client's held messages behind data.
// seen lists the activity IDs data already carries.
func (h *Hub) greetClient(c *Client, data []byte, seen []string) {
	select {
	case h.greet <- greeting{client: c, data: data, seen: seen}:
	case <-h.done:
	}
}

func (h *Hub) sendTo(c *Client, msg Message) error {
	data, err := marshalMessage(msg)
	if err != nil {
		return err
	}
	select {
	case h.direct <- directMessage{client: c, data: data}:
	case <-h.done:
	}
	return nil
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.addLocked(c, room)
	}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Subscriptions returns the sorted rooms c belongs to
func (h *Hub) Subscriptions(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := []string{}
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			rooms = append(rooms, room)
		}
	}
	slices.Sort(rooms)
	return rooms
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients subscribed to room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Relay forwards broker events to the rooms that carry them until ctx ends or
// the subscription closes
func (h *Hub) Relay(ctx context.Context, broker feed.Broker) error {
	events, err := broker.Subscribe(ctx)
	if err != nil {
		return err
	}
	for e := range events {
		room, msg, ok := messageFor(e)
		if !ok {
			h.logger.Debug("ignoring feed event", zap.String("kind", e.Kind))
			continue
		}
		key := ""
		if e.Activity != nil {
			key = e.Activity.ID.String()
		}
		if err := h.broadcastKeyed(room, msg, key); err != nil {
			h.logger.Error("broadcasting feed event", zap.String("kind", e.Kind), zap.Error(err))
		}
	}
	return nil
}

func messageFor(e feed.Event) (string, Message, bool) {
	switch e.Kind {
	case feed.KindActivity:
		if e.Activity == nil {
			return "", Message{}, false
		}
		return RoomActivity, Message{Type: TypeActivity, Data: e.Activity}, true
	case feed.KindStats:
		if e.Stats == nil {
			return "", Message{}, false
		}
		return RoomInventory, Message{Type: TypeStats, Data: e.Stats}, true
	case feed.KindCarChanged:
		return RoomInventory, Message{Type: TypeCarChanged, Data: map[string]string{"id": e.CarID}}, true
	case feed.KindCarRemoved:
		return RoomInventory, Message{Type: TypeCarRemoved, Data: map[string]string{"id": e.CarID}}, true
	}
	return "", Message{}, false
}
