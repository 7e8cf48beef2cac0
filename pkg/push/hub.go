// Package push fans pipeline events out to connected websocket
// clients. Clients subscribe to event types; broadcasts reach only
// subscribers, and connections that fail a write are dropped.
package push

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EventType names a class of pushed events.
type EventType string

const (
	// EventPipelineUpdate carries the refreshed pipeline overview.
	EventPipelineUpdate EventType = "pipeline_update"

	// EventBuild carries a single build state change.
	EventBuild EventType = "build_event"

	// EventNotification carries a fired notification.
	EventNotification EventType = "notification"
)

// AllEvents lists every event type a client may subscribe to.
var AllEvents = []EventType{EventPipelineUpdate, EventBuild, EventNotification}

// ValidEvent reports whether s names a known event type.
func ValidEvent(s string) bool {
	for _, e := range AllEvents {
		if string(e) == s {
			return true
		}
	}

	return false
}

// Envelope is the wire format of one pushed event.
type Envelope struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Conn is the subset of a websocket connection the hub writes to.
// *websocket.Conn satisfies it; tests substitute a recorder.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type client struct {
	id   string
	conn Conn
	subs map[EventType]bool

	// Serializes writes to conn. Broadcasts come from several
	// goroutines and gorilla/websocket forbids concurrent writers on
	// one connection.
	writeMu sync.Mutex
}

func (c *client) write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub tracks connected clients and their subscriptions.
type Hub struct {
	log logrus.FieldLogger

	mu      sync.RWMutex
	clients map[string]*client
	now     func() time.Time
}

// NewHub creates an empty hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:     log.WithField("component", "push"),
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Register adds a connection subscribed to the given events (all
// events when none are named) and returns its client ID.
func (h *Hub) Register(conn Conn, events ...EventType) string {
	if len(events) == 0 {
		events = AllEvents
	}

	subs := make(map[EventType]bool, len(events))
	for _, e := range events {
		subs[e] = true
	}

	id := uuid.NewString()

	h.mu.Lock()
	h.clients[id] = &client{id: id, conn: conn, subs: subs}
	h.mu.Unlock()

	h.log.WithField("client", id).Debug("Websocket client connected")

	return id
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()

		h.log.WithField("client", id).Debug("Websocket client disconnected")
	}
}

// Subscribe replaces a client's subscription set.
func (h *Hub) Subscribe(id string, events ...EventType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}

	c.subs = make(map[EventType]bool, len(events))
	for _, e := range events {
		c.subs[e] = true
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Broadcast sends payload to every client subscribed to event. Clients
// whose connection fails the write are dropped.
func (h *Hub) Broadcast(event EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.WithError(err).WithField("event", event).
			Error("Failed to encode push payload")

		return
	}

	msg, err := json.Marshal(Envelope{
		Type:      event,
		Data:      data,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to encode push envelope")

		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))

	for _, c := range h.clients {
		if c.subs[event] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var dead []string

	for _, c := range targets {
		if err := c.write(msg); err != nil {
			h.log.WithError(err).WithField("client", c.id).
				Debug("Dropping websocket client after failed write")

			dead = append(dead, c.id)
		}
	}

	for _, id := range dead {
		h.Unregister(id)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}
