// Package protocol defines the messages exchanged between a host test runner,
// the reporter session and a renderer. Messages flow as JSON envelopes over
// WebSocket connections, JSONL files and the HTTP API.
package protocol

import "encoding/json"

// Envelope wraps all messages with a type discriminator.
// When marshaling, Payload can be any message struct.
// When unmarshaling, use EnvelopeRaw for type-based dispatch.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EnvelopeRaw is used for receiving messages where the payload
// needs to be unmarshaled based on the message type.
type EnvelopeRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalEnvelope creates an envelope with the given type and payload
func MarshalEnvelope(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Payload: payload})
}

// ParseEnvelope decodes a single envelope
func ParseEnvelope(data []byte) (EnvelopeRaw, error) {
	var env EnvelopeRaw
	err := json.Unmarshal(data, &env)
	return env, err
}

// Host -> Reporter messages

// RunReadyMessage replaces the whole command tree. Commands are decoded
// leniently by the ingest package, so they stay raw here.
type RunReadyMessage struct {
	RunID    string            `json:"run_id,omitempty"`
	Commands []json.RawMessage `json:"commands"`
}

// RunStartMessage marks the beginning of a reporting session
type RunStartMessage struct {
	RunID     string `json:"run_id,omitempty"`
	Spec      string `json:"spec,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
}

// Reporter -> Host messages

// CommandRefMessage addresses a command in an outbound message. Number is
// omitted for records that carry no sequence number (events).
type CommandRefMessage struct {
	Number int    `json:"number,omitempty"`
	ID     string `json:"id,omitempty"`
}

// Renderer -> Reporter messages

// SignalMessage forwards a raw interaction signal from a renderer
type SignalMessage struct {
	Kind string `json:"kind"`
	Key  uint64 `json:"key"`
	Part string `json:"part,omitempty"`
}

// Message type constants
const (
	TypeRunReady      = "run:ready"
	TypeRunStart      = "run:start"
	TypeCommandAdd    = "command:add"
	TypeCommandUpdate = "command:update"

	TypeConsoleLog    = "console-log"
	TypeShowPreview   = "show-preview"
	TypeHidePreview   = "hide-preview"
	TypeRemoveCommand = "remove-command"

	TypeSignal = "signal"
	TypePing   = "ping"
	TypePong   = "pong"
)

// Signal kinds
const (
	SignalMouseOver = "mouseover"
	SignalMouseOut  = "mouseout"
	SignalClick     = "click"
	SignalToggle    = "toggle"
)

// IsInbound reports whether msgType is a host -> reporter message
func IsInbound(msgType string) bool {
	switch msgType {
	case TypeRunReady, TypeRunStart, TypeCommandAdd, TypeCommandUpdate:
		return true
	}
	return false
}
