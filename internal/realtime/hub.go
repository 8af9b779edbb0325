// Package realtime fans created-entity events out to WebSocket
// subscribers. No ordering or delivery guarantees.
package realtime

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"example.com/threadfeed/internal/logger"
	"example.com/threadfeed/internal/models"
)

var logg = logger.New()

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriberConn is the slice of *websocket.Conn the hub needs;
// narrowed so tests can register fakes.
type subscriberConn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// Hub tracks connected subscribers and broadcasts event envelopes.
type Hub struct {
	mu      sync.Mutex
	clients map[string]subscriberConn
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]subscriberConn)}
}

// Register adds a subscriber and returns its id.
func (h *Hub) Register(conn subscriberConn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = conn
	h.mu.Unlock()
	logg.Info("realtime", "Subscriber connected")
	return id
}

// Unregister drops a subscriber and closes its connection.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	conn, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		conn.Close()
		logg.Info("realtime", "Subscriber disconnected")
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends the event to every subscriber; a failed write drops
// that subscriber. Writes happen outside the lock.
func (h *Hub) Broadcast(ev models.Event) {
	h.mu.Lock()
	targets := make(map[string]subscriberConn, len(h.clients))
	for id, conn := range h.clients {
		targets[id] = conn
	}
	h.mu.Unlock()

	for id, conn := range targets {
		if err := conn.WriteJSON(ev); err != nil {
			logg.Error("realtime", "Subscriber write failed, dropping", err)
			h.Unregister(id)
		}
	}
}

// CloseAll drops every subscriber, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]subscriberConn)
	h.mu.Unlock()
	for _, conn := range clients {
		conn.Close()
	}
}

// HandleWS upgrades the request and keeps the subscriber registered
// until its read loop fails (client gone).
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logg.Error("realtime", "WebSocket upgrade failed", err)
		return
	}

	id := h.Register(conn)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Unregister(id)
				return
			}
		}
	}()
}
