package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/pkg/protocol"
)

// fakeConn records written frames and can be told to fail.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (f *fakeConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write failed")
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func TestRegisterIsIdempotent(t *testing.T) {
	h := New()
	c := &fakeConn{}

	h.Register(c)
	h.Register(c)
	assert.Equal(t, 1, h.Count())

	h.Unregister(c)
	assert.Equal(t, 0, h.Count())
	h.Unregister(c) // unknown conn, must not panic
}

func TestBroadcastReachesAllConns(t *testing.T) {
	h := New()
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	h.Register(c1)
	h.Register(c2)

	h.SessionUpdated(&protocol.Session{ID: "s1", Status: "active"})

	for _, c := range []*fakeConn{c1, c2} {
		frames := c.received()
		require.Len(t, frames, 1)

		env, err := protocol.DecodeEnvelope(frames[0])
		require.NoError(t, err)
		assert.Equal(t, protocol.MsgSessionUpdated, env.Type)

		sess, err := protocol.DecodeData[protocol.Session](env)
		require.NoError(t, err)
		assert.Equal(t, "s1", sess.ID)
	}
}

func TestBroadcastDropsFailedConn(t *testing.T) {
	h := New()
	good := &fakeConn{}
	bad := &fakeConn{fail: true}
	h.Register(good)
	h.Register(bad)

	h.Idle(&protocol.Idle{SessionID: "s1", AudioCue: true})

	assert.Equal(t, 1, h.Count(), "failed conn removed")
	assert.Len(t, good.received(), 1, "healthy conn unaffected")

	// Subsequent broadcasts skip the dropped conn entirely.
	h.Idle(&protocol.Idle{SessionID: "s1"})
	assert.Len(t, good.received(), 2)
}

func TestBroadcastWithNoConnsIsNoOp(t *testing.T) {
	h := New()
	h.ErrorNotice(&protocol.ErrorNotice{SessionID: "s1", Message: "boom"})
	assert.Equal(t, 0, h.Count())
}

func TestBroadcastEncodesTimelineEnvelope(t *testing.T) {
	h := New()
	c := &fakeConn{}
	h.Register(c)

	h.TimelineEvent(&protocol.TimelineEvent{
		ID: 42, SessionID: "s1", Timestamp: 1000, EventType: "tool", Summary: "ran tests",
	})

	frames := c.received()
	require.Len(t, frames, 1)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frames[0], &raw))
	assert.JSONEq(t, `"timeline"`, string(raw["type"]))

	env, err := protocol.DecodeEnvelope(frames[0])
	require.NoError(t, err)
	ev, err := protocol.DecodeData[protocol.TimelineEvent](env)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ev.ID)
	assert.Equal(t, "ran tests", ev.Summary)
}
