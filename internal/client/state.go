package client

import (
	"sort"
	"sync"

	"github.com/pulseboard/pulseboard/pkg/protocol"
)

// maxTimelinePerSession bounds per-session timeline history; the oldest
// events are evicted first.
const maxTimelinePerSession = 500

// Snapshot is an immutable view of the client's replicated state.
// Sessions are ordered most recently updated first; timelines are
// ordered by server-assigned id.
type Snapshot struct {
	Sessions  []protocol.Session
	Timelines map[string][]protocol.TimelineEvent
}

// Session looks up a session by id.
func (s *Snapshot) Session(id string) (protocol.Session, bool) {
	for _, sess := range s.Sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return protocol.Session{}, false
}

// State replicates the server's session set on the client. Every
// mutation builds a fresh snapshot, so a snapshot handed out earlier
// never changes under its reader. All methods are safe for concurrent
// use, and all of them tolerate replays: delivery is at-least-once so
// the same message may be applied twice.
type State struct {
	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewState() *State {
	return &State{snapshot: &Snapshot{Timelines: map[string][]protocol.TimelineEvent{}}}
}

// Snapshot returns the current immutable snapshot.
func (st *State) Snapshot() *Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshot
}

// ReplaceSessions swaps in the full session list fetched over REST
// after (re)connecting. Timelines for sessions that no longer exist are
// dropped.
func (st *State) ReplaceSessions(sessions []protocol.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := cloneSnapshot(st.snapshot)
	next.Sessions = append([]protocol.Session(nil), sessions...)
	sortSessions(next.Sessions)

	keep := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		keep[sess.ID] = struct{}{}
	}
	for id := range next.Timelines {
		if _, ok := keep[id]; !ok {
			delete(next.Timelines, id)
		}
	}

	st.snapshot = next
}

// UpsertSession merges one session payload by id, inserting it if
// unknown. Applying the same payload twice converges to the same state.
func (st *State) UpsertSession(sess protocol.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := cloneSnapshot(st.snapshot)
	replaced := false
	for i := range next.Sessions {
		if next.Sessions[i].ID == sess.ID {
			next.Sessions[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		next.Sessions = append(next.Sessions, sess)
	}
	sortSessions(next.Sessions)

	st.snapshot = next
}

// SetAttention applies an attention flag to a session if present.
func (st *State) SetAttention(sessionID string, needsAttention bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := cloneSnapshot(st.snapshot)
	for i := range next.Sessions {
		if next.Sessions[i].ID == sessionID {
			next.Sessions[i].NeedsAttention = needsAttention
			break
		}
	}
	st.snapshot = next
}

// SetStatus overwrites a session's status if present.
func (st *State) SetStatus(sessionID, status string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := cloneSnapshot(st.snapshot)
	for i := range next.Sessions {
		if next.Sessions[i].ID == sessionID {
			next.Sessions[i].Status = status
			break
		}
	}
	st.snapshot = next
}

// AppendTimeline adds one timeline event, deduplicating on the
// server-assigned id so replays are no-ops. Events arriving out of id
// order are kept sorted; the per-session buffer evicts oldest-first
// beyond the cap.
func (st *State) AppendTimeline(ev protocol.TimelineEvent) {
	st.mu.Lock()
	defer st.mu.Unlock()

	existing := st.snapshot.Timelines[ev.SessionID]
	for _, have := range existing {
		if have.ID == ev.ID {
			return
		}
	}

	next := cloneSnapshot(st.snapshot)
	events := append(append([]protocol.TimelineEvent(nil), existing...), ev)
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	if len(events) > maxTimelinePerSession {
		events = events[len(events)-maxTimelinePerSession:]
	}
	next.Timelines[ev.SessionID] = events

	st.snapshot = next
}

// Timeline returns a session's buffered events in id order.
func (st *State) Timeline(sessionID string) []protocol.TimelineEvent {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshot.Timelines[sessionID]
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	next := &Snapshot{
		Sessions:  append([]protocol.Session(nil), s.Sessions...),
		Timelines: make(map[string][]protocol.TimelineEvent, len(s.Timelines)),
	}
	for id, events := range s.Timelines {
		next.Timelines[id] = events
	}
	return next
}

func sortSessions(sessions []protocol.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
}
