// Package protocol defines the WebSocket contract between the
// pulseboard server and dashboard clients.
//
// Every frame is a JSON envelope {type, data}. After the transport
// opens, the client either sends an auth message or, when the server
// runs without a password, is treated as authenticated immediately. The
// server replies {type:"auth", data:{success}} and from then on pushes
// typed notifications. Delivery is at-least-once; clients must apply
// every message idempotently (timeline events dedup on their
// store-assigned id, session payloads merge by id).
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types. MsgAuth and MsgPing flow client to server; MsgAuth is
// also the server's acknowledgment. Everything else is a server push.
const (
	MsgAuth           = "auth"
	MsgPing           = "ping"
	MsgSessionCreated = "session.created"
	MsgSessionUpdated = "session.updated"
	MsgTimeline       = "timeline"
	MsgAttention      = "attention"
	MsgIdle           = "idle"
	MsgError          = "error"
)

// Envelope is the outer frame for every message in either direction.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps a payload in an envelope and marshals the whole frame.
func Encode(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses one frame.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope missing type")
	}
	return &env, nil
}

// DecodeData unmarshals an envelope's payload into T.
func DecodeData[T any](env *Envelope) (*T, error) {
	var out T
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return nil, fmt.Errorf("decoding %s data: %w", env.Type, err)
		}
	}
	return &out, nil
}

// AuthRequest is the client's application-level credential.
type AuthRequest struct {
	Password string `json:"password"`
}

// AuthAck is the server's handshake verdict. A false success is
// terminal for the connection; clients must not retry with the same
// credential.
type AuthAck struct {
	Success bool `json:"success"`
}

// Session is the full session projection pushed on session.created and
// merged on session.updated. Timestamps are epoch millis.
type Session struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Hostname        string  `json:"hostname"`
	Directory       string  `json:"directory,omitempty"`
	ParentSessionID string  `json:"parent_session_id,omitempty"`
	Status          string  `json:"status"`
	NeedsAttention  bool    `json:"needs_attention"`
	TokenTotal      int64   `json:"token_total"`
	CostTotal       float64 `json:"cost_total"`
	CreatedAt       int64   `json:"created_at"`
	UpdatedAt       int64   `json:"updated_at"`
}

// TimelineEvent carries one timeline row including its store-assigned
// id, which is the client-side dedup key.
type TimelineEvent struct {
	ID         int64  `json:"id"`
	SessionID  string `json:"session_id"`
	Timestamp  int64  `json:"timestamp"`
	EventType  string `json:"event_type"`
	Summary    string `json:"summary,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
}

// Attention signals that a session started or stopped waiting on a
// human (permission prompts raise it, user messages clear it).
type Attention struct {
	SessionID      string `json:"session_id"`
	NeedsAttention bool   `json:"needs_attention"`
	Title          string `json:"title,omitempty"`
	AudioCue       bool   `json:"audio_cue,omitempty"`
	SubAgent       bool   `json:"sub_agent,omitempty"`
}

// Idle signals that a session went idle.
type Idle struct {
	SessionID string `json:"session_id"`
	AudioCue  bool   `json:"audio_cue,omitempty"`
	SubAgent  bool   `json:"sub_agent,omitempty"`
}

// ErrorNotice carries a session-scoped error message.
type ErrorNotice struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
