package store

import (
	"context"

	"gorm.io/gorm"
)

// AddTokenUsage appends a usage record and atomically increments the
// parent session's running totals in the same transaction. Increments
// commute, so concurrent token events for one session are both
// reflected. A record for an unknown session is stored but the parent
// increment affects zero rows; that accounting is lost by design (see
// the out-of-order tolerance on the ingestion contract).
func (s *Store) AddTokenUsage(ctx context.Context, rec *TokenUsage) error {
	return withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(rec).Error; err != nil {
				return err
			}
			return tx.Model(&Session{}).
				Where("id = ?", rec.SessionID).
				Updates(map[string]interface{}{
					"token_total": gorm.Expr("token_total + ?", rec.TokensIn+rec.TokensOut),
					"cost_total":  gorm.Expr("cost_total + ?", rec.Cost),
					"updated_at":  rec.Timestamp,
				}).Error
		})
	}, 3)
}

// ListTokenUsage returns a session's usage records oldest-first.
func (s *Store) ListTokenUsage(ctx context.Context, sessionID string) ([]TokenUsage, error) {
	var records []TokenUsage
	err := withRetry(func() error {
		return s.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("id ASC").
			Find(&records).Error
	}, 3)
	return records, err
}

// UsageStats aggregates token usage across all sessions, grouped by
// provider and model.
func (s *Store) UsageStats(ctx context.Context) ([]UsageStat, error) {
	var stats []UsageStat
	err := withRetry(func() error {
		return s.db.WithContext(ctx).
			Model(&TokenUsage{}).
			Select(`provider_id,
				model_id,
				COUNT(*) AS requests,
				SUM(tokens_in) AS tokens_in,
				SUM(tokens_out) AS tokens_out,
				SUM(tokens_in + tokens_out) AS total_tokens,
				SUM(cost) AS total_cost`).
			Group("provider_id, model_id").
			Order("total_cost DESC").
			Scan(&stats).Error
	}, 3)
	return stats, err
}
