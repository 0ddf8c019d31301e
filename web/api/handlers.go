package api

import (
	"encoding/json"
	"net/http"

	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
)

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Session    string         `json:"session"`
	Version    uint64         `json:"version"`
	Run        domain.RunInfo `json:"run"`
	Visible    int            `json:"visible"`
	Hosts      int            `json:"hosts"`
	SSEClients int            `json:"sse_clients"`
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		v := s.source.View()
		status := StatusResponse{
			Session:    v.Session,
			Version:    v.Version,
			Run:        v.Run,
			Visible:    v.Len(),
			SSEClients: s.sseHub.Clients(),
		}
		if s.hosts != nil {
			status.Hosts = s.hosts.Count()
		}
		writeJSON(w, status)
	}
}

func (s *Server) viewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, s.source.View())
	}
}

func (s *Server) summaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, s.source.View().Summary)
	}
}

func validSignal(kind string) bool {
	switch kind {
	case protocol.SignalMouseOver, protocol.SignalMouseOut, protocol.SignalClick, protocol.SignalToggle:
		return true
	}
	return false
}

func (s *Server) signalsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var sig protocol.SignalMessage
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if !validSignal(sig.Kind) {
			writeError(w, http.StatusBadRequest, "unknown signal kind")
			return
		}

		payload, _ := json.Marshal(sig)
		env := protocol.EnvelopeRaw{Type: protocol.TypeSignal, Payload: payload}
		if err := s.source.Submit(r.Context(), env); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) envelopesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var env protocol.EnvelopeRaw
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if !protocol.IsInbound(env.Type) {
			writeError(w, http.StatusBadRequest, "not a host event: "+env.Type)
			return
		}
		if err := s.source.Submit(r.Context(), env); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
