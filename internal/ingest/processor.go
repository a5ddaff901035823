package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/store"
	"github.com/pulseboard/pulseboard/pkg/protocol"
)

// Notifier receives live notifications after an event has been
// committed. The hub implements this; tests substitute a recorder.
type Notifier interface {
	SessionCreated(sess *protocol.Session)
	SessionUpdated(sess *protocol.Session)
	TimelineEvent(ev *protocol.TimelineEvent)
	Attention(att *protocol.Attention)
	Idle(idle *protocol.Idle)
	ErrorNotice(notice *protocol.ErrorNotice)
}

// MultiNotifier fans one notification out to several notifiers in
// order. Used to layer push alerts on top of the WebSocket hub.
type MultiNotifier []Notifier

func (m MultiNotifier) SessionCreated(sess *protocol.Session) {
	for _, n := range m {
		n.SessionCreated(sess)
	}
}

func (m MultiNotifier) SessionUpdated(sess *protocol.Session) {
	for _, n := range m {
		n.SessionUpdated(sess)
	}
}

func (m MultiNotifier) TimelineEvent(ev *protocol.TimelineEvent) {
	for _, n := range m {
		n.TimelineEvent(ev)
	}
}

func (m MultiNotifier) Attention(att *protocol.Attention) {
	for _, n := range m {
		n.Attention(att)
	}
}

func (m MultiNotifier) Idle(idle *protocol.Idle) {
	for _, n := range m {
		n.Idle(idle)
	}
}

func (m MultiNotifier) ErrorNotice(notice *protocol.ErrorNotice) {
	for _, n := range m {
		n.ErrorNotice(notice)
	}
}

// Processor applies parsed ingestion events to the store and notifies
// connected clients afterwards. Notifications always follow the commit
// so a broadcast timeline event already carries its store-assigned id.
type Processor struct {
	store    *store.Store
	notifier Notifier
}

func NewProcessor(st *store.Store, n Notifier) *Processor {
	return &Processor{store: st, notifier: n}
}

// Apply processes one event. Store errors abort before any
// notification; the caller should surface them as a server-side
// failure so the sender retries.
func (p *Processor) Apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case SessionCreated:
		return p.applySessionCreated(ctx, e)
	case SessionUpdated:
		return p.applySessionUpdated(ctx, e)
	case SessionIdle:
		return p.applySessionIdle(ctx, e)
	case Timeline:
		return p.applyTimeline(ctx, e)
	case Tokens:
		return p.applyTokens(ctx, e)
	case UnknownEvent:
		logging.Logger.Warn("dropping unknown event type", "type", e.Type)
		return nil
	default:
		logging.Logger.Warn("dropping unhandled event", "type", fmt.Sprintf("%T", ev))
		return nil
	}
}

func (p *Processor) applySessionCreated(ctx context.Context, e SessionCreated) error {
	ts := timestampOrNow(e.Timestamp)
	sess := &store.Session{
		ID:        e.SessionID,
		Title:     e.Title,
		Hostname:  e.Hostname,
		Status:    store.StatusActive,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if e.Directory != "" {
		sess.Directory = &e.Directory
	}
	if e.ParentSessionID != "" {
		sess.ParentSessionID = &e.ParentSessionID
	}
	if err := p.store.UpsertSession(ctx, sess); err != nil {
		return fmt.Errorf("upserting session %s: %w", e.SessionID, err)
	}
	// Instance liveness tracks receipt time, not the event's own clock:
	// a replayed old event must not push an instance back offline.
	if err := p.store.UpsertInstance(ctx, e.Hostname, time.Now().UnixMilli()); err != nil {
		logging.Logger.Error("recording instance failed", "hostname", e.Hostname, "error", err)
	}
	p.notifier.SessionCreated(ToProtocolSession(sess))
	return nil
}

func (p *Processor) applySessionUpdated(ctx context.Context, e SessionUpdated) error {
	ts := timestampOrNow(e.Timestamp)
	if err := p.store.TouchSession(ctx, e.SessionID, e.Title, ts); err != nil {
		return fmt.Errorf("updating session %s: %w", e.SessionID, err)
	}
	p.notifySession(ctx, e.SessionID)
	return nil
}

func (p *Processor) applySessionIdle(ctx context.Context, e SessionIdle) error {
	ts := timestampOrNow(e.Timestamp)
	if err := p.store.SetSessionIdle(ctx, e.SessionID, ts); err != nil {
		return fmt.Errorf("idling session %s: %w", e.SessionID, err)
	}
	sess, err := p.store.GetSession(ctx, e.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logging.Logger.Debug("idle for unknown session", "session_id", e.SessionID)
			return nil
		}
		return err
	}
	p.notifier.Idle(&protocol.Idle{
		SessionID: e.SessionID,
		AudioCue:  !sess.IsSubAgent(),
		SubAgent:  sess.IsSubAgent(),
	})
	p.notifier.SessionUpdated(ToProtocolSession(sess))
	return nil
}

func (p *Processor) applyTimeline(ctx context.Context, e Timeline) error {
	ev := &store.TimelineEvent{
		SessionID: e.SessionID,
		Timestamp: timestampOrNow(e.Timestamp),
		EventType: e.EventType,
		Summary:   e.Summary,
	}
	if e.Tool != "" {
		ev.ToolName = &e.Tool
	}
	if e.ProviderID != "" {
		ev.ProviderID = &e.ProviderID
	}
	if e.ModelID != "" {
		ev.ModelID = &e.ModelID
	}
	if err := p.store.InsertTimelineEvent(ctx, ev); err != nil {
		return fmt.Errorf("inserting timeline event for %s: %w", e.SessionID, err)
	}
	p.notifier.TimelineEvent(ToProtocolTimelineEvent(ev))

	switch e.EventType {
	case store.EventPermission, store.EventUser:
		sess, err := p.store.GetSession(ctx, e.SessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logging.Logger.Debug("timeline for unknown session", "session_id", e.SessionID, "event_type", e.EventType)
				return nil
			}
			return err
		}
		p.notifier.Attention(&protocol.Attention{
			SessionID:      e.SessionID,
			NeedsAttention: e.EventType == store.EventPermission,
			Title:          sess.Title,
			AudioCue:       e.EventType == store.EventPermission && !sess.IsSubAgent(),
			SubAgent:       sess.IsSubAgent(),
		})
		p.notifier.SessionUpdated(ToProtocolSession(sess))
	case store.EventError:
		p.notifier.ErrorNotice(&protocol.ErrorNotice{
			SessionID: e.SessionID,
			Message:   e.Summary,
		})
	}
	return nil
}

func (p *Processor) applyTokens(ctx context.Context, e Tokens) error {
	rec := &store.TokenUsage{
		SessionID:        e.SessionID,
		ProviderID:       e.ProviderID,
		ModelID:          e.ModelID,
		Agent:            e.Agent,
		TokensIn:         e.TokensIn,
		TokensOut:        e.TokensOut,
		TokensCacheRead:  e.TokensCacheRead,
		TokensCacheWrite: e.TokensCacheWrite,
		TokensReasoning:  e.TokensReasoning,
		Cost:             e.Cost,
		DurationMS:       e.DurationMS,
		Timestamp:        timestampOrNow(e.Timestamp),
	}
	if err := p.store.AddTokenUsage(ctx, rec); err != nil {
		return fmt.Errorf("recording token usage for %s: %w", e.SessionID, err)
	}
	p.notifySession(ctx, e.SessionID)
	return nil
}

// notifySession pushes the refreshed session projection, silently
// skipping sessions the store does not know yet.
func (p *Processor) notifySession(ctx context.Context, id string) {
	sess, err := p.store.GetSession(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Logger.Error("loading session for broadcast failed", "session_id", id, "error", err)
		} else {
			logging.Logger.Debug("event for unknown session", "session_id", id)
		}
		return
	}
	p.notifier.SessionUpdated(ToProtocolSession(sess))
}

func timestampOrNow(ts int64) int64 {
	if ts > 0 {
		return ts
	}
	return time.Now().UnixMilli()
}

// ToProtocolSession converts a stored session into its wire projection,
// resolving the stale status at read time.
func ToProtocolSession(s *store.Session) *protocol.Session {
	out := &protocol.Session{
		ID:             s.ID,
		Title:          s.Title,
		Hostname:       s.Hostname,
		Status:         s.EffectiveStatus(time.Now().UnixMilli()),
		NeedsAttention: s.NeedsAttention != 0,
		TokenTotal:     s.TokenTotal,
		CostTotal:      s.CostTotal,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.Directory != nil {
		out.Directory = *s.Directory
	}
	if s.ParentSessionID != nil {
		out.ParentSessionID = *s.ParentSessionID
	}
	return out
}

// ToProtocolTimelineEvent converts a stored timeline row, carrying the
// store-assigned id clients dedup on.
func ToProtocolTimelineEvent(ev *store.TimelineEvent) *protocol.TimelineEvent {
	out := &protocol.TimelineEvent{
		ID:        ev.ID,
		SessionID: ev.SessionID,
		Timestamp: ev.Timestamp,
		EventType: ev.EventType,
		Summary:   ev.Summary,
	}
	if ev.ToolName != nil {
		out.ToolName = *ev.ToolName
	}
	if ev.ProviderID != nil {
		out.ProviderID = *ev.ProviderID
	}
	if ev.ModelID != nil {
		out.ModelID = *ev.ModelID
	}
	return out
}
