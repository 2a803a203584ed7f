// Package live pushes conversation events to connected clients over
// websockets. Delivery is best-effort: consumers reconcile via the
// regular HTTP listing endpoints.
package live

import (
	"encoding/json"
	"sync"

	"parlor/pkg/logger"
	"parlor/pkg/metrics"
)

// Event is a single push frame.
type Event struct {
	Kind           string          `json:"kind"` // message, reaction, delete, read, typing, conversation
	ConversationID string          `json:"conversation_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Publisher is what the domain services see: fan an event out to a set
// of user ids.
type Publisher interface {
	Publish(userIDs []string, ev Event)
}

// NopPublisher drops every event; used when the hub is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish([]string, Event) {}

// Hub tracks connected clients per user and fans events out to every
// connection a recipient has open.
type Hub struct {
	mu         sync.RWMutex
	byUser     map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		byUser:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the registration lifecycle. Call in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.byUser[c.userID] == nil {
				h.byUser[c.userID] = make(map[*Client]bool)
			}
			h.byUser[c.userID][c] = true
			h.mu.Unlock()
			metrics.LiveClients.Inc()
			logger.Debug("live_client_registered", "user", c.userID)
		case c := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.byUser[c.userID]; ok && conns[c] {
				delete(conns, c)
				close(c.send)
				if len(conns) == 0 {
					delete(h.byUser, c.userID)
				}
			}
			h.mu.Unlock()
			metrics.LiveClients.Dec()
			logger.Debug("live_client_unregistered", "user", c.userID)
		case <-h.done:
			return
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() { close(h.done) }

// Publish sends ev to every open connection of every listed user. Slow
// consumers are dropped rather than blocking the sender.
func (h *Hub) Publish(userIDs []string, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		logger.Error("live_marshal_failed", "err", err.Error())
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, uid := range userIDs {
		for c := range h.byUser[uid] {
			select {
			case c.send <- b:
			default:
				delete(h.byUser[uid], c)
				close(c.send)
			}
		}
	}
}
