package stream

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Hub manages live WebSocket connections and per-underlying subscriptions.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // underlying -> clients
	register   chan *Client
	unregister chan *Client
	broadcast  chan *groupMessage
	mu         sync.RWMutex
	logger     *zap.Logger
}

type groupMessage struct {
	underlying string
	payload    []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *groupMessage, 256),
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("stream hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for underlying := range client.groups {
					if clients, ok := h.groups[underlying]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.groups, underlying)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("connID", client.connID))

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.groups[msg.underlying]; ok {
				for client := range clients {
					select {
					case client.send <- msg.payload:
					default:
						// Buffer full, schedule disconnect
						go func(c *Client) {
							h.unregister <- c
						}(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
}

// JoinGroup subscribes a client to an underlying.
func (h *Hub) JoinGroup(client *Client, underlying string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[underlying] == nil {
		h.groups[underlying] = make(map[*Client]bool)
	}
	h.groups[underlying][client] = true
	client.groups[underlying] = true

	h.logger.Debug("client subscribed",
		zap.String("connID", client.connID),
		zap.String("underlying", underlying),
	)
}

// LeaveGroup unsubscribes a client from an underlying.
func (h *Hub) LeaveGroup(client *Client, underlying string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.groups[underlying]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, underlying)
		}
	}
	delete(client.groups, underlying)

	h.logger.Debug("client unsubscribed",
		zap.String("connID", client.connID),
		zap.String("underlying", underlying),
	)
}

// ActiveGroups returns all underlyings with at least one subscriber.
func (h *Hub) ActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var groups []string
	for underlying, clients := range h.groups {
		if len(clients) > 0 {
			groups = append(groups, underlying)
		}
	}
	return groups
}

// Broadcast sends a payload to every client subscribed to the underlying.
func (h *Hub) Broadcast(underlying string, payload []byte) {
	h.broadcast <- &groupMessage{underlying: underlying, payload: payload}
}
