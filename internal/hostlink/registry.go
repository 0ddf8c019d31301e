package hostlink

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sendBuffer is the number of outbound frames queued per host
const sendBuffer = 256

// ConnectedHost is a host runner connection
type ConnectedHost struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	Received    int
	mu          sync.Mutex
	send        chan []byte   // drained by writePump
	done        chan struct{} // closed when the read loop exits
}

func newConnectedHost(id string, conn *websocket.Conn) *ConnectedHost {
	return &ConnectedHost{
		ID:          id,
		Conn:        conn,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
	}
}

// enqueue queues a text frame without blocking. It reports false when the
// host's buffer is full.
func (h *ConnectedHost) enqueue(data []byte) bool {
	select {
	case h.send <- data:
		return true
	default:
		return false
	}
}

// writePump is the only goroutine writing data frames to the host
func (h *ConnectedHost) writePump() {
	for {
		select {
		case <-h.done:
			return
		case data := <-h.send:
			h.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[hostlink] Write to %s failed: %v", h.ID, err)
				// The read loop cleans up
				h.Conn.Close()
				return
			}
		}
	}
}

func (h *ConnectedHost) countReceived() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Received++
}

// Status is a snapshot of a host connection
type Status struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	Received    int       `json:"received"`
}

// GetStatus returns a snapshot of the host's status fields (thread-safe)
func (h *ConnectedHost) GetStatus() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{ID: h.ID, ConnectedAt: h.ConnectedAt, Received: h.Received}
}

// Registry tracks connected hosts
type Registry struct {
	hosts map[string]*ConnectedHost
	mu    sync.RWMutex
}

// NewRegistry creates a new host registry
func NewRegistry() *Registry {
	return &Registry{hosts: make(map[string]*ConnectedHost)}
}

// Register adds a host
func (r *Registry) Register(h *ConnectedHost) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[h.ID] = h
}

// Unregister removes a host
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hosts, id)
}

// All returns every connected host
func (r *Registry) All() []*ConnectedHost {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hosts := make([]*ConnectedHost, 0, len(r.hosts))
	for _, h := range r.hosts {
		hosts = append(hosts, h)
	}
	return hosts
}

// Count returns the number of connected hosts
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}
