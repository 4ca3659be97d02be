package ws

import (
	"sort"
	"sync"
)

// Hub tracks live dashboard connections.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewHub builds connection registry.
func NewHub() *Hub {
	return &Hub{connections: make(map[string]*Connection)}
}

// Add registers new connection.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID()] = conn
}

// Remove removes connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, id)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Stations lists the stations at least one client watches.
func (h *Hub) Stations() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, c := range h.connections {
		seen[c.Station()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Broadcast sends payload to every client of station and returns how many were sent.
func (h *Hub) Broadcast(station string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.connections {
		if c.Station() == station {
			c.Send(payload)
			n++
		}
	}
	return n
}
