package store

import (
	"context"

	"gorm.io/gorm"
)

// InsertTimelineEvent appends a timeline event and applies its side
// effects on the parent session in one transaction. The event's ID is
// filled in by the store and must be used as the ordering/dedup key;
// the caller must not broadcast the event before this returns.
//
// Side effects: every insert bumps the parent's updated_at; a
// permission event raises needs_attention; a user event clears it and
// forces the session back to active (explicit re-engagement). Events
// for unknown sessions are still stored so the timeline is complete if
// the session.created arrives late; the parent update is then a no-op.
func (s *Store) InsertTimelineEvent(ctx context.Context, ev *TimelineEvent) error {
	return withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(ev).Error; err != nil {
				return err
			}

			updates := map[string]interface{}{"updated_at": ev.Timestamp}
			switch ev.EventType {
			case EventPermission:
				updates["needs_attention"] = 1
			case EventUser:
				updates["needs_attention"] = 0
				updates["status"] = StatusActive
			}
			return tx.Model(&Session{}).Where("id = ?", ev.SessionID).Updates(updates).Error
		})
	}, 3)
}

// ListTimeline returns a session's events ordered by insertion (id).
// limit <= 0 returns everything.
func (s *Store) ListTimeline(ctx context.Context, sessionID string, limit int) ([]TimelineEvent, error) {
	var events []TimelineEvent
	err := withRetry(func() error {
		query := s.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("id ASC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query.Find(&events).Error
	}, 3)
	return events, err
}
