package realtime

import (
	"sync"

	"coinsentry/internal/domain"
)

// Conn is the subset of *websocket.Conn the hub needs. Tests substitute an
// in-memory implementation.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Envelope is the wire format pushed to subscribers.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const TypeAnalysisUpdate = "ANALYSIS_UPDATE"

// Hub fans out cycle results to connected WebSocket clients. A client whose
// write fails is dropped; it is expected to reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[Conn]struct{})}
}

func (h *Hub) AddClient(conn Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) RemoveClient(conn Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastCycle pushes one analysis update to every client.
func (h *Hub) BroadcastCycle(res domain.CycleResult) {
	h.broadcast(Envelope{Type: TypeAnalysisUpdate, Data: res})
}

func (h *Hub) broadcast(v any) {
	h.mu.RLock()
	clients := make([]Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	for _, conn := range clients {
		if err := conn.WriteJSON(v); err != nil {
			h.RemoveClient(conn)
		}
	}
}
