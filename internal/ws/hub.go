package ws

import (
	"context"
	"encoding/json"
	"sync"

	"fundledger/internal/domain"
)

// Client is one WebSocket connection watching the ledger event stream.
// ProjectID narrows the stream to a single project; Types to a set of
// event types. Both empty means everything.
type Client struct {
	ActorID   string
	ProjectID *uint
	Types     map[string]bool
	Send      chan []byte
	Hub       *Hub
	mu        sync.Mutex
	closed    bool
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
	close(c.Send)
}

func (c *Client) wants(ev domain.Event) bool {
	if len(c.Types) > 0 && !c.Types[ev.Type] {
		return false
	}
	if c.ProjectID == nil {
		return true
	}
	return ev.ProjectID != nil && *ev.ProjectID == *c.ProjectID
}

// offer queues data unless the client is closed or its buffer is full.
func (c *Client) offer(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Hub maintains the set of live event-stream clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Handle pushes ev to every matching client. Slow clients miss events
// rather than stall the bus, so Handle never fails.
func (h *Hub) Handle(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(ev) {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.offer(data)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
