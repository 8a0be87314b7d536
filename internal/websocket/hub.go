package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"fridgeio/internal/model"
)

// Message is one real-time notification pushed to a user's connected
// devices. Collection messages carry the full current state, never a diff.
type Message struct {
	Category     string              `json:"category"`
	Success      *bool               `json:"success,omitempty"`
	Message      string              `json:"message,omitempty"`
	Groceries    []model.Grocery     `json:"groceries,omitempty"`
	GroceryLists []model.GroceryList `json:"groceryLists,omitempty"`
}

func GroceriesMessage(groceries []model.Grocery) Message {
	return Message{Category: "groceries", Groceries: groceries}
}

func GroceryListsMessage(lists []model.GroceryList) Message {
	return Message{Category: "groceryLists", GroceryLists: lists}
}

func AuthMessage(success bool, text string) Message {
	return Message{Category: "auth", Success: &success, Message: text}
}

// Hub maintains active WebSocket clients grouped by identity. Messages for
// one user never reach another user's connections.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to its identity's room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.identity] == nil {
		h.rooms[c.identity] = make(map[*Client]struct{})
	}
	h.rooms[c.identity][c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel. Unregistering
// twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.identity]; ok {
		if _, registered := room[c]; registered {
			delete(room, c)
			close(c.send)
			if len(room) == 0 {
				delete(h.rooms, c.identity)
			}
		}
	}
	h.mu.Unlock()
}

// Publish sends a message to every connection the identity has open.
func (h *Hub) Publish(identity string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal websocket message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[identity] {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connections an identity has open.
func (h *Hub) ClientCount(identity string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[identity])
}
