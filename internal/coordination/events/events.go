// Package events implements the primary's /__events websocket broadcast:
// every Role Transition Event and Reverse Proxy 502 is pushed to connected
// watchers as a JSON line. Purely observational: built on a gorilla/websocket
// Upgrader with CheckOrigin allowing local dev clients, and a matching
// client-side dial shape used in tests here.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Event is one broadcast line. Kind distinguishes a role transition from a
// proxy error; the remaining fields are populated according to Kind.
type Event struct {
	Kind       string    `json:"kind"` // "role-transition" | "proxy-error"
	Time       time.Time `json:"time"`
	Role       string    `json:"role,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Hub tracks connected watchers and fans out Events to all of them. A
// watcher disconnecting mid-stream never affects coordination; a failed
// write just drops that watcher.
type Hub struct {
	mu       sync.Mutex
	watchers map[*websocket.Conn]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{watchers: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection as a watcher until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.watchers[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.watchers, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	// Watchers never send anything meaningful; read until the connection
	// closes so the Hub notices a disconnect promptly.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends ev to every connected watcher. Failed writes drop that
// watcher without affecting the others.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.watchers {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.watchers, conn)
			_ = conn.Close()
		}
	}
}

// WatcherCount reports how many watchers are currently connected. Intended
// for tests and diagnostics.
func (h *Hub) WatcherCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}
