package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertSession creates or overwrites a session row. Replays of
// session.created for an existing id land here and must overwrite
// rather than duplicate or error, since a resumed agent re-announces
// itself with the same id.
func (s *Store) UpsertSession(ctx context.Context, sess *Session) error {
	return withRetry(func() error {
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(sess).Error
	}, 3)
}

// TouchSession applies a partial title update. Status and totals are
// untouched. Unknown session ids are accepted as no-ops.
func (s *Store) TouchSession(ctx context.Context, id, title string, timestamp int64) error {
	updates := map[string]interface{}{"updated_at": timestamp}
	if title != "" {
		updates["title"] = title
	}
	return withRetry(func() error {
		return s.db.WithContext(ctx).
			Model(&Session{}).Where("id = ?", id).
			Updates(updates).Error
	}, 3)
}

// SetSessionIdle marks a session idle. Unknown ids are no-ops.
func (s *Store) SetSessionIdle(ctx context.Context, id string, timestamp int64) error {
	return withRetry(func() error {
		return s.db.WithContext(ctx).
			Model(&Session{}).Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     StatusIdle,
				"updated_at": timestamp,
			}).Error
	}, 3)
}

// SetSessionStatus overwrites a session's stored status.
func (s *Store) SetSessionStatus(ctx context.Context, id, status string, timestamp int64) error {
	return withRetry(func() error {
		return s.db.WithContext(ctx).
			Model(&Session{}).Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": timestamp,
			}).Error
	}, 3)
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &sess, nil
}

// SessionFilter narrows ListSessions. Zero value lists everything
// except archived sessions.
type SessionFilter struct {
	Hostname        string
	Status          string // matches stored status, not the stale projection
	IncludeArchived bool
}

// ListSessions returns sessions newest-first.
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	var sessions []Session
	err := withRetry(func() error {
		query := s.db.WithContext(ctx).Order("updated_at DESC")
		if filter.Hostname != "" {
			query = query.Where("hostname = ?", filter.Hostname)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		} else if !filter.IncludeArchived {
			query = query.Where("status <> ?", StatusArchived)
		}
		return query.Find(&sessions).Error
	}, 3)
	return sessions, err
}

// DeleteSession removes a session and cascades to its timeline events
// and token usage records in one transaction.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Where("id = ?", id).Delete(&Session{})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("session %s: %w", id, ErrNotFound)
			}
			if err := tx.Where("session_id = ?", id).Delete(&TimelineEvent{}).Error; err != nil {
				return fmt.Errorf("deleting timeline for %s: %w", id, err)
			}
			if err := tx.Where("session_id = ?", id).Delete(&TokenUsage{}).Error; err != nil {
				return fmt.Errorf("deleting token usage for %s: %w", id, err)
			}
			return nil
		})
	}, 3)
}

// UpsertInstance records that a host reported a session, bumping
// last_seen.
func (s *Store) UpsertInstance(ctx context.Context, hostname string, lastSeen int64) error {
	if hostname == "" {
		return nil
	}
	return withRetry(func() error {
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "hostname"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"last_seen": lastSeen}),
			}).
			Create(&Instance{Hostname: hostname, LastSeen: lastSeen}).Error
	}, 3)
}

// ListInstances returns known hosts, most recently seen first.
func (s *Store) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Order("last_seen DESC").Find(&instances).Error
	}, 3)
	return instances, err
}
