package ws

import (
	"context"
	"sync"
)

// Hub tracks live connections and fans user-channel events out to them.
// Per-conversation events reach clients through their own sessions; the
// hub only carries the directory-level feed keyed by user channel.
type Hub struct {
	mu sync.RWMutex

	// clients maps connection id to client.
	clients map[string]*Client

	// channels maps a user-channel name to its subscribed connections.
	// One user may hold several connections (tabs, devices).
	channels map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		channels:   make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
	}
}

// Run drives the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast delivers a raw event payload to every connection subscribed
// to the named channel.
func (h *Hub) Broadcast(channel string, payload []byte) {
	h.mu.RLock()
	for c := range h.channels[channel] {
		c.SendEvent(payload)
	}
	h.mu.RUnlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client
	ch := client.userChannel
	if _, ok := h.channels[ch]; !ok {
		h.channels[ch] = make(map[*Client]struct{})
	}
	h.channels[ch][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)

	if subscribers, ok := h.channels[client.userChannel]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.channels, client.userChannel)
		}
	}

	close(client.send)
}
