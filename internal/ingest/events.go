// Package ingest turns raw webhook payloads from agent instances into
// durable state mutations and live notifications.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadEvent marks payloads the sender got wrong: invalid JSON, a
// missing type discriminator, or a missing session id. These are
// rejected synchronously and never retried here.
var ErrBadEvent = errors.New("bad event")

// Wire type discriminators accepted on the ingestion endpoint.
const (
	TypeSessionCreated = "session.created"
	TypeSessionUpdated = "session.updated"
	TypeSessionIdle    = "session.idle"
	TypeTimeline       = "timeline"
	TypeTokens         = "tokens"
)

// Event is the closed set of parsed ingestion events. Unknown wire
// types parse into UnknownEvent so the processor can log and drop them
// in one place instead of silently diverging as new types appear.
type Event interface {
	eventType() string
}

// SessionCreated announces a new (or resumed) agent run. Replays for an
// existing id are expected and must overwrite.
type SessionCreated struct {
	SessionID       string `json:"sessionId"`
	Title           string `json:"title"`
	Hostname        string `json:"hostname"`
	Directory       string `json:"directory"`
	ParentSessionID string `json:"parentSessionId"`
	Timestamp       int64  `json:"timestamp"`
}

// SessionUpdated is a partial update of the session title.
type SessionUpdated struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
	Timestamp int64  `json:"timestamp"`
}

// SessionIdle marks a session idle.
type SessionIdle struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// Timeline records one observable occurrence within a session.
type Timeline struct {
	SessionID  string `json:"sessionId"`
	EventType  string `json:"eventType"`
	Summary    string `json:"summary"`
	Tool       string `json:"tool"`
	ProviderID string `json:"providerId"`
	ModelID    string `json:"modelId"`
	Timestamp  int64  `json:"timestamp"`
}

// Tokens records one billable request's accounting.
type Tokens struct {
	SessionID        string  `json:"sessionId"`
	ProviderID       string  `json:"providerId"`
	ModelID          string  `json:"modelId"`
	Agent            string  `json:"agent"`
	TokensIn         int64   `json:"tokensIn"`
	TokensOut        int64   `json:"tokensOut"`
	TokensCacheRead  int64   `json:"tokensCacheRead"`
	TokensCacheWrite int64   `json:"tokensCacheWrite"`
	TokensReasoning  int64   `json:"tokensReasoning"`
	Cost             float64 `json:"cost"`
	DurationMS       int64   `json:"durationMs"`
	Timestamp        int64   `json:"timestamp"`
}

// UnknownEvent preserves an unrecognized discriminator for logging.
type UnknownEvent struct {
	Type string
}

func (SessionCreated) eventType() string { return TypeSessionCreated }
func (SessionUpdated) eventType() string { return TypeSessionUpdated }
func (SessionIdle) eventType() string    { return TypeSessionIdle }
func (Timeline) eventType() string       { return TypeTimeline }
func (Tokens) eventType() string         { return TypeTokens }
func (e UnknownEvent) eventType() string { return e.Type }

// Parse decodes one webhook body into a typed event. Payloads without a
// valid JSON object, a type, or a sessionId fail with ErrBadEvent;
// unrecognized types succeed as UnknownEvent.
func Parse(raw []byte) (Event, error) {
	var head struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrBadEvent)
	}

	var (
		ev  Event
		err error
	)
	switch head.Type {
	case TypeSessionCreated:
		var e SessionCreated
		err = json.Unmarshal(raw, &e)
		ev = e
	case TypeSessionUpdated:
		var e SessionUpdated
		err = json.Unmarshal(raw, &e)
		ev = e
	case TypeSessionIdle:
		var e SessionIdle
		err = json.Unmarshal(raw, &e)
		ev = e
	case TypeTimeline:
		var e Timeline
		err = json.Unmarshal(raw, &e)
		ev = e
	case TypeTokens:
		var e Tokens
		err = json.Unmarshal(raw, &e)
		ev = e
	default:
		return UnknownEvent{Type: head.Type}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if head.SessionID == "" {
		return nil, fmt.Errorf("%w: missing sessionId", ErrBadEvent)
	}
	return ev, nil
}
