package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/models"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	ID     uuid.UUID
	UserID string
	Conn   Conn
}

// Hub streams audit events to connected admin dashboards.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan models.AuditEvent
	done       chan struct{}
	stopOnce   sync.Once

	logger logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.AuditEvent, 64),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client.ID] = client
			h.clientsMu.Unlock()
			h.logger.WithField("user_id", client.UserID).Info("Admin dashboard connected")
		case client := <-h.unregister:
			h.remove(client.ID)
		case event := <-h.broadcast:
			h.send(event)
		case <-h.done:
			h.clientsMu.Lock()
			for id, c := range h.clients {
				c.Conn.Close()
				delete(h.clients, id)
			}
			h.clientsMu.Unlock()
			return
		}
	}
}

func (h *Hub) send(event models.AuditEvent) {
	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		if err := c.Conn.WriteJSON(event); err != nil {
			h.logger.WithError(err).WithField("user_id", c.UserID).Warn("Error sending event to dashboard")
			h.remove(c.ID)
		}
	}
}

func (h *Hub) remove(id uuid.UUID) {
	h.clientsMu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.clientsMu.Unlock()
	if ok {
		c.Conn.Close()
		h.logger.WithField("user_id", c.UserID).Info("Admin dashboard disconnected")
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) Name() string { return "websocket" }

// Append queues the event for broadcast. Dashboards are a live view, so a
// full queue drops the event instead of blocking the caller.
func (h *Hub) Append(ctx context.Context, event models.AuditEvent) error {
	select {
	case h.broadcast <- event:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		h.logger.WithField("event", event.ID).Warn("Dashboard broadcast queue full, dropping event")
		return nil
	}
}
