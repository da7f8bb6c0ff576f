package websocket

import (
	"sync"
)

// Hub tracks the live connections of this node, keyed by user. A user
// may hold several connections (multiple tabs/devices); a send reaches
// all of them.
type Hub struct {
	mu      sync.RWMutex
	byUser  map[string]map[*Client]struct{}
	clients map[string]*Client

	// onFirstConnect / onLastDisconnect fire when a user's first
	// connection arrives or their last one drops. Used for presence.
	onFirstConnect   func(userID string)
	onLastDisconnect func(userID string)
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		byUser:  make(map[string]map[*Client]struct{}),
		clients: make(map[string]*Client),
	}
}

// OnFirstConnect registers the presence hook for a user coming online.
func (h *Hub) OnFirstConnect(fn func(userID string)) {
	h.onFirstConnect = fn
}

// OnLastDisconnect registers the presence hook for a user going offline.
func (h *Hub) OnLastDisconnect(fn func(userID string)) {
	h.onLastDisconnect = fn
}

// Register adds a client connection.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	set, ok := h.byUser[client.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byUser[client.UserID] = set
	}
	first := len(set) == 0
	set[client] = struct{}{}
	h.mu.Unlock()

	if first && h.onFirstConnect != nil {
		h.onFirstConnect(client.UserID)
	}
}

// Unregister removes a client connection and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	last := false
	if set, ok := h.byUser[client.UserID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byUser, client.UserID)
			last = true
		}
	}
	close(client.Send)
	h.mu.Unlock()

	if last && h.onLastDisconnect != nil {
		h.onLastDisconnect(client.UserID)
	}
}

// SendToUser writes a payload to every live connection of the user.
// Reports whether at least one connection existed.
func (h *Hub) SendToUser(userID string, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.byUser[userID]
	if !ok || len(set) == 0 {
		return false
	}
	for c := range set {
		c.SendMessage(payload)
	}
	return true
}

// ConnectedUserIDs returns the users with at least one live connection
// on this node.
func (h *Hub) ConnectedUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.byUser))
	for id := range h.byUser {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of connections on this node.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
