// Package hostlink connects host test runners to a reporter session over
// WebSocket. Hosts stream inbound envelopes and receive the outbound
// commands the session emits on the same connection.
package hostlink

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/live-reporter/internal/protocol"
)

// writeWait is time allowed to write a message
const writeWait = 10 * time.Second

// ServerConfig configures the host endpoint
type ServerConfig struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Submitter accepts inbound envelopes for the session
type Submitter interface {
	Submit(ctx context.Context, env protocol.EnvelopeRaw) error
}

// Server accepts host connections
type Server struct {
	config   ServerConfig
	registry *Registry
	submit   Submitter
	upgrader websocket.Upgrader
}

// NewServer creates a host endpoint feeding submit
func NewServer(config ServerConfig, submit Submitter) *Server {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if config.HeartbeatTimeout == 0 {
		config.HeartbeatTimeout = 90 * time.Second // Allow missing 2 heartbeats before disconnect
	}
	return &Server{
		config:   config,
		registry: NewRegistry(),
		submit:   submit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Registry returns the host registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// HandleWebSocket handles incoming WebSocket connections from hosts
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hostlink] Upgrade failed: %v", err)
		return
	}

	host := newConnectedHost(uuid.NewString(), conn)
	s.registry.Register(host)
	log.Printf("[hostlink] Host %s connected from %s", host.ID, r.RemoteAddr)

	go host.writePump()
	go s.handleHostConnection(host)
}

func (s *Server) handleHostConnection(host *ConnectedHost) {
	conn := host.Conn
	defer func() {
		close(host.done)
		conn.Close()
		s.registry.Unregister(host.ID)
		log.Printf("[hostlink] Host %s disconnected", host.ID)
	}()

	// Pongs extend the read deadline
	conn.SetReadDeadline(time.Now().Add(s.config.HeartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.config.HeartbeatTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[hostlink] Read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.HeartbeatTimeout))

		env, err := protocol.ParseEnvelope(message)
		if err != nil {
			log.Printf("[hostlink] Invalid message from %s: %v", host.ID, err)
			continue
		}

		switch {
		case env.Type == protocol.TypePing:
			data, _ := protocol.MarshalEnvelope(protocol.TypePong, nil)
			if !host.enqueue(data) {
				log.Printf("[hostlink] Host %s send buffer full, disconnecting", host.ID)
				return
			}
		case protocol.IsInbound(env.Type) || env.Type == protocol.TypeSignal:
			host.countReceived()
			if err := s.submit.Submit(context.Background(), env); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Printf("[hostlink] Session rejected %s: %v", env.Type, err)
				return
			}
		default:
			log.Printf("[hostlink] Ignoring %q from %s", env.Type, host.ID)
		}
	}
}

// Send broadcasts an outbound envelope to every connected host. It never
// blocks: a host whose send buffer is full is disconnected.
func (s *Server) Send(env protocol.Envelope) {
	data, err := protocol.MarshalEnvelope(env.Type, env.Payload)
	if err != nil {
		log.Printf("[hostlink] Failed to encode %s: %v", env.Type, err)
		return
	}
	for _, h := range s.registry.All() {
		if !h.enqueue(data) {
			log.Printf("[hostlink] Host %s send buffer full, disconnecting", h.ID)
			// The read loop cleans up
			h.Conn.Close()
		}
	}
}

// HeartbeatLoop pings every host until ctx is cancelled
func (s *Server) HeartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sendHeartbeats()
		}
	}
}

func (s *Server) sendHeartbeats() {
	for _, h := range s.registry.All() {
		// Control frames may be written concurrently with writePump
		err := h.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		if err != nil {
			log.Printf("[hostlink] Ping to %s failed: %v", h.ID, err)
			h.Conn.Close()
		}
	}
}

// CloseAll disconnects every host
func (s *Server) CloseAll() {
	for _, h := range s.registry.All() {
		h.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		h.Conn.Close()
	}
}
