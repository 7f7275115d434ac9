package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Rooms a client can subscribe to
const (
	RoomActivity  = "activity"
	RoomInventory = "inventory"
)

// Server message types
const (
	TypeSnapshot   = "snapshot"
	TypeActivity   = "activity"
	TypeStats      = "stats"
	TypeCarChanged = "car.changed"
	TypeCarRemoved = "car.removed"
	TypePong       = "pong"
	TypeSubscribed = "subscribed"
	TypeError      = "error"
)

// Client message types
const (
	TypePing        = "ping"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

var (
	// ErrUnknownMessage is returned for client messages with an unregistered type
	ErrUnknownMessage = errors.New("unknown message type")

	// ErrUnknownRoom is returned when subscribing to a room that does not exist
	ErrUnknownRoom = errors.New("unknown room")
)

// Message is a frame sent to clients
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ClientMessage is a frame received from a client
type ClientMessage struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

// HandlerFunc handles one client message type
type HandlerFunc func(c *Client, msg ClientMessage) error

// MessageRouter dispatches client messages by type
type MessageRouter struct {
	handlers map[string]HandlerFunc
}

// NewMessageRouter creates a router with the ping and subscription handlers registered
func NewMessageRouter() *MessageRouter {
	r := &MessageRouter{handlers: make(map[string]HandlerFunc)}
	r.Handle(TypePing, handlePing)
	r.Handle(TypeSubscribe, handleSubscribe)
	r.Handle(TypeUnsubscribe, handleUnsubscribe)
	return r
}

// Handle registers fn for messages of the given type
func (r *MessageRouter) Handle(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw and calls the matching handler
func (r *MessageRouter) Dispatch(c *Client, raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	fn, ok := r.handlers[msg.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return fn(c, msg)
}

func handlePing(c *Client, _ ClientMessage) error {
	c.Send(Message{Type: TypePong})
	return nil
}

func handleSubscribe(c *Client, msg ClientMessage) error {
	if !validRoom(msg.Room) {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, msg.Room)
	}
	c.hub.join(c, msg.Room)
	c.Send(Message{Type: TypeSubscribed, Data: c.hub.Subscriptions(c)})
	return nil
}

func handleUnsubscribe(c *Client, msg ClientMessage) error {
	if !validRoom(msg.Room) {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, msg.Room)
	}
	c.hub.leave(c, msg.Room)
	c.Send(Message{Type: TypeSubscribed, Data: c.hub.Subscriptions(c)})
	return nil
}

func validRoom(room string) bool {
	return room == RoomActivity || room == RoomInventory
}

func marshalMessage(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	return data, nil
}
