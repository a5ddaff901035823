package client

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/pkg/protocol"
)

func TestUpsertSessionMergesByID(t *testing.T) {
	st := NewState()

	st.UpsertSession(protocol.Session{ID: "s1", Title: "first", UpdatedAt: 100})
	st.UpsertSession(protocol.Session{ID: "s1", Title: "renamed", UpdatedAt: 200})

	snap := st.Snapshot()
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, "renamed", snap.Sessions[0].Title)
}

func TestSessionsOrderedNewestFirst(t *testing.T) {
	st := NewState()

	st.UpsertSession(protocol.Session{ID: "old", UpdatedAt: 100})
	st.UpsertSession(protocol.Session{ID: "new", UpdatedAt: 300})
	st.UpsertSession(protocol.Session{ID: "mid", UpdatedAt: 200})

	snap := st.Snapshot()
	require.Len(t, snap.Sessions, 3)
	assert.Equal(t, "new", snap.Sessions[0].ID)
	assert.Equal(t, "mid", snap.Sessions[1].ID)
	assert.Equal(t, "old", snap.Sessions[2].ID)
}

func TestSnapshotIsImmutable(t *testing.T) {
	st := NewState()
	st.UpsertSession(protocol.Session{ID: "s1", Title: "before", UpdatedAt: 100})

	before := st.Snapshot()
	st.UpsertSession(protocol.Session{ID: "s1", Title: "after", UpdatedAt: 200})
	st.AppendTimeline(protocol.TimelineEvent{ID: 1, SessionID: "s1"})

	assert.Equal(t, "before", before.Sessions[0].Title)
	assert.Empty(t, before.Timelines["s1"])

	after := st.Snapshot()
	assert.Equal(t, "after", after.Sessions[0].Title)
	assert.Len(t, after.Timelines["s1"], 1)
}

func TestAppendTimelineDedupsByID(t *testing.T) {
	st := NewState()

	ev := protocol.TimelineEvent{ID: 7, SessionID: "s1", Summary: "once"}
	st.AppendTimeline(ev)
	st.AppendTimeline(ev)

	assert.Len(t, st.Timeline("s1"), 1)
}

func TestAppendTimelineKeepsIDOrder(t *testing.T) {
	st := NewState()

	st.AppendTimeline(protocol.TimelineEvent{ID: 3, SessionID: "s1"})
	st.AppendTimeline(protocol.TimelineEvent{ID: 1, SessionID: "s1"})
	st.AppendTimeline(protocol.TimelineEvent{ID: 2, SessionID: "s1"})

	events := st.Timeline("s1")
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, int64(2), events[1].ID)
	assert.Equal(t, int64(3), events[2].ID)
}

func TestAppendTimelineEvictsOldest(t *testing.T) {
	st := NewState()

	for i := 1; i <= maxTimelinePerSession+10; i++ {
		st.AppendTimeline(protocol.TimelineEvent{ID: int64(i), SessionID: "s1", Summary: fmt.Sprintf("ev%d", i)})
	}

	events := st.Timeline("s1")
	require.Len(t, events, maxTimelinePerSession)
	assert.Equal(t, int64(11), events[0].ID, "oldest evicted first")
	assert.Equal(t, int64(maxTimelinePerSession+10), events[len(events)-1].ID)
}

func TestReplaceSessionsDropsOrphanTimelines(t *testing.T) {
	st := NewState()
	st.UpsertSession(protocol.Session{ID: "keep", UpdatedAt: 100})
	st.UpsertSession(protocol.Session{ID: "gone", UpdatedAt: 100})
	st.AppendTimeline(protocol.TimelineEvent{ID: 1, SessionID: "keep"})
	st.AppendTimeline(protocol.TimelineEvent{ID: 2, SessionID: "gone"})

	st.ReplaceSessions([]protocol.Session{{ID: "keep", UpdatedAt: 200}})

	snap := st.Snapshot()
	require.Len(t, snap.Sessions, 1)
	assert.Len(t, snap.Timelines["keep"], 1)
	assert.Empty(t, snap.Timelines["gone"])
}

func TestSetAttentionAndStatus(t *testing.T) {
	st := NewState()
	st.UpsertSession(protocol.Session{ID: "s1", Status: "active", UpdatedAt: 100})

	st.SetAttention("s1", true)
	sess, ok := st.Snapshot().Session("s1")
	require.True(t, ok)
	assert.True(t, sess.NeedsAttention)

	st.SetStatus("s1", "idle")
	sess, _ = st.Snapshot().Session("s1")
	assert.Equal(t, "idle", sess.Status)

	// Unknown ids are tolerated without inserting phantom sessions.
	st.SetAttention("ghost", true)
	st.SetStatus("ghost", "idle")
	assert.Len(t, st.Snapshot().Sessions, 1)
}

func TestSnapshotSessionLookup(t *testing.T) {
	st := NewState()
	st.UpsertSession(protocol.Session{ID: "s1", UpdatedAt: 100})

	_, ok := st.Snapshot().Session("missing")
	assert.False(t, ok)
}
