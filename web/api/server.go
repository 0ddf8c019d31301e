// Package api serves a reporter session's read model over HTTP and accepts
// renderer signals.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/protocol"
	"github.com/hochfrequenz/live-reporter/internal/reporter"
)

// Source is the session the API reads from and submits to
type Source interface {
	View() *reporter.View
	Submit(ctx context.Context, env protocol.EnvelopeRaw) error
}

// HostCounter reports connected host runners
type HostCounter interface {
	Count() int
}

// Server is the HTTP API server
type Server struct {
	source Source
	hosts  HostCounter
	addr   string
	mux    *http.ServeMux
	sseHub *SSEHub
}

// NewServer creates a new API server
func NewServer(source Source, addr string) *Server {
	s := &Server{
		source: source,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/view", s.viewHandler())
	s.mux.HandleFunc("/api/summary", s.summaryHandler())
	s.mux.HandleFunc("/api/signals", s.signalsHandler())
	s.mux.HandleFunc("/api/envelopes", s.envelopesHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Mount adds a handler under path, used for the host WebSocket endpoint
func (s *Server) Mount(path string, h http.HandlerFunc, hosts HostCounter) {
	s.mux.HandleFunc(path, h)
	s.hosts = hosts
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	go s.sseHub.Run(ctx)

	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[web] Listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// PublishView streams a published view to SSE clients
func (s *Server) PublishView(v *reporter.View) {
	s.Broadcast(SSEEvent{Type: EventView, Data: v})
}

// Send streams an outbound host command to SSE clients
func (s *Server) Send(env protocol.Envelope) {
	s.Broadcast(SSEEvent{Type: EventCommand, Data: env})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
