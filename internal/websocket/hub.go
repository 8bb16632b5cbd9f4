package websocket

import (
	"encoding/json"
	"sync"
)

// BalanceUpdate is pushed to a user's sockets after the reconciler applies a
// ledger entry that changed one of their balances.
type BalanceUpdate struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	EntryID  string `json:"entry_id"`
	Kind     string `json:"kind"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) Clients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// BroadcastBalance never blocks; a client whose buffer is full misses the update.
func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
