// Package websocket streams domain events to connected staff clients. The Hub
// is an events.Publisher, so it sits next to the broker publisher and sees
// every event the services emit.
package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/platform/events"
)

// sendBuffer is the number of frames queued per client before new events are
// dropped for it.
const sendBuffer = 64

var knownTypes = []events.Type{
	events.AppointmentBooked,
	events.AppointmentStatusChanged,
	events.ReviewCreated,
	events.DoctorRatingUpdated,
}

// ClientMessage is an inbound frame changing a client's subscription.
type ClientMessage struct {
	Action string        `json:"action"` // "subscribe" or "unsubscribe"
	Types  []events.Type `json:"types"`
}

// Client is one connected socket. A client registered with no types receives
// every event until it unsubscribes from one.
type Client struct {
	ID     string
	UserID string
	all    bool
	types  map[events.Type]struct{}
	send   chan []byte
}

func (c *Client) wants(t events.Type) bool {
	if c.all {
		return true
	}
	_, ok := c.types[t]
	return ok
}

// Send is the queue the write pump drains. It is closed on Unregister.
func (c *Client) Send() <-chan []byte { return c.send }

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "live-feed").Logger(),
	}
}

// ParseTypes reads a comma-separated type list, keeping known types only.
func ParseTypes(raw string) []events.Type {
	parts := lo.Map(strings.Split(raw, ","), func(s string, _ int) events.Type {
		return events.Type(strings.TrimSpace(s))
	})
	return lo.Uniq(lo.Filter(parts, func(t events.Type, _ int) bool {
		return lo.Contains(knownTypes, t)
	}))
}

// Register creates and adds a client for userID subscribed to types.
func (h *Hub) Register(userID string, types []events.Type) *Client {
	c := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		all:    len(types) == 0,
		types:  make(map[events.Type]struct{}),
		send:   make(chan []byte, sendBuffer),
	}
	for _, t := range types {
		c.types[t] = struct{}{}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("client_id", c.ID).Str("user_id", userID).Msg("client connected")
	return c
}

// Unregister removes the client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) Subscribe(c *Client, types []events.Type) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range types {
		c.types[t] = struct{}{}
	}
}

// Unsubscribe drops types from the client's filter. An unfiltered client is
// narrowed to the known types minus the removed ones; an emptied filter
// receives nothing.
func (h *Hub) Unsubscribe(c *Client, types []events.Type) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.all && len(types) > 0 {
		c.all = false
		for _, t := range knownTypes {
			c.types[t] = struct{}{}
		}
	}
	for _, t := range types {
		delete(c.types, t)
	}
}

func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	types := lo.Filter(msg.Types, func(t events.Type, _ int) bool { return lo.Contains(knownTypes, t) })
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, types)
	case "unsubscribe":
		h.Unsubscribe(c, types)
	}
}

// Publish queues the event on every interested client. A client whose queue is
// full misses the event; Publish never blocks on a slow reader.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(e.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Str("client_id", c.ID).Str("event_type", string(e.Type)).Msg("client queue full, event dropped")
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
