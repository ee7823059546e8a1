package ws

import (
	"encoding/json"
	"sync"

	"dating_platform/internal/logger"
)

// Hub tracks open connections per user. A user may hold several at once
// (one per tab or device) and every push fans out to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	logger.Debug("ws client registered", "user_id", c.UserID, "connections", len(set))
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	c.closeSend()
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	logger.Debug("ws client unregistered", "user_id", c.UserID)
}

// Online reports how many connections userID currently holds.
func (h *Hub) Online(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Notify pushes one message to every connection of userID. It never blocks:
// a connection whose buffer is full misses the message.
func (h *Hub) Notify(userID int64, msgType string, data any) {
	msg, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		logger.Warn("ws notify marshal failed", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		if !c.enqueue(msg) {
			logger.Warn("ws send buffer full, dropping message", "user_id", userID, "type", msgType)
		}
	}
}

// Close drops every connection. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, set := range h.clients {
		for c := range set {
			c.closeSend()
		}
		delete(h.clients, userID)
	}
}
