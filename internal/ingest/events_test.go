package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionCreated(t *testing.T) {
	raw := []byte(`{
		"type": "session.created",
		"sessionId": "abc123",
		"title": "refactor auth",
		"hostname": "devbox",
		"directory": "/home/dev/proj",
		"parentSessionId": "root42",
		"timestamp": 1700000000000
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)

	created, ok := ev.(SessionCreated)
	require.True(t, ok, "expected SessionCreated, got %T", ev)
	assert.Equal(t, "abc123", created.SessionID)
	assert.Equal(t, "refactor auth", created.Title)
	assert.Equal(t, "devbox", created.Hostname)
	assert.Equal(t, "root42", created.ParentSessionID)
	assert.Equal(t, int64(1700000000000), created.Timestamp)
}

func TestParseTimeline(t *testing.T) {
	raw := []byte(`{
		"type": "timeline",
		"sessionId": "abc123",
		"eventType": "tool",
		"summary": "ran tests",
		"tool": "bash",
		"timestamp": 1700000000000
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)

	tl, ok := ev.(Timeline)
	require.True(t, ok, "expected Timeline, got %T", ev)
	assert.Equal(t, "tool", tl.EventType)
	assert.Equal(t, "bash", tl.Tool)
}

func TestParseTokens(t *testing.T) {
	raw := []byte(`{
		"type": "tokens",
		"sessionId": "abc123",
		"providerId": "anthropic",
		"modelId": "m1",
		"tokensIn": 1200,
		"tokensOut": 300,
		"tokensCacheRead": 50,
		"cost": 0.04,
		"durationMs": 2100
	}`)

	ev, err := Parse(raw)
	require.NoError(t, err)

	tok, ok := ev.(Tokens)
	require.True(t, ok, "expected Tokens, got %T", ev)
	assert.Equal(t, int64(1200), tok.TokensIn)
	assert.Equal(t, int64(300), tok.TokensOut)
	assert.Equal(t, int64(50), tok.TokensCacheRead)
	assert.InDelta(t, 0.04, tok.Cost, 1e-9)
	assert.Equal(t, int64(2100), tok.DurationMS)
}

func TestParseRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"sessionId": "abc123"}`},
		{"missing session id", `{"type": "session.created", "title": "x"}`},
		{"missing session id on timeline", `{"type": "timeline", "eventType": "tool"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			assert.ErrorIs(t, err, ErrBadEvent)
		})
	}
}

func TestParseUnknownTypeSucceeds(t *testing.T) {
	ev, err := Parse([]byte(`{"type": "session.exploded", "sessionId": "abc123"}`))
	require.NoError(t, err)

	unknown, ok := ev.(UnknownEvent)
	require.True(t, ok, "expected UnknownEvent, got %T", ev)
	assert.Equal(t, "session.exploded", unknown.Type)
}
