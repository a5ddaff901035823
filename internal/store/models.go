package store

// Session status values as persisted. "stale" is never written; it is a
// read-time projection computed by EffectiveStatus.
const (
	StatusActive   = "active"
	StatusIdle     = "idle"
	StatusError    = "error"
	StatusStale    = "stale"
	StatusArchived = "archived"
)

// StaleThresholdMillis is how long an active session may go without an
// update before it is reported as stale.
const StaleThresholdMillis = 60_000

// Session is one tracked coding-agent run. The ID is assigned by the
// agent instance, not by the store. All timestamps are epoch millis.
type Session struct {
	ID              string  `gorm:"primaryKey" json:"id"`
	Title           string  `gorm:"not null;default:''" json:"title"`
	Hostname        string  `gorm:"not null;default:''" json:"hostname"`
	Directory       *string `gorm:"default:null" json:"directory"`
	ParentSessionID *string `gorm:"index:idx_sessions_parent;default:null" json:"parent_session_id"`
	Status          string  `gorm:"not null;default:'active'" json:"status"`
	NeedsAttention  int     `gorm:"not null;default:0" json:"needs_attention"`
	TokenTotal      int64   `gorm:"not null;default:0" json:"token_total"`
	CostTotal       float64 `gorm:"not null;default:0" json:"cost_total"`
	CreatedAt       int64   `gorm:"not null" json:"created_at"`
	UpdatedAt       int64   `gorm:"not null;index:idx_sessions_updated" json:"updated_at"`
}

// EffectiveStatus projects the display status for a session at the
// given time. A session stored as active that has not been updated for
// more than StaleThresholdMillis reads as stale. The projection is
// never written back.
func (s *Session) EffectiveStatus(nowMillis int64) string {
	if s.Status == StatusActive && nowMillis-s.UpdatedAt > StaleThresholdMillis {
		return StatusStale
	}
	return s.Status
}

// IsSubAgent reports whether the session was spawned by another session.
func (s *Session) IsSubAgent() bool {
	return s.ParentSessionID != nil && *s.ParentSessionID != ""
}

// Timeline event types with dedicated side effects. The set of event
// types is open; anything else is stored and displayed as-is.
const (
	EventTool       = "tool"
	EventMessage    = "message"
	EventUser       = "user"
	EventError      = "error"
	EventPermission = "permission"
)

// TimelineEvent is one observable occurrence within a session. The
// store-assigned ID is the authoritative insertion order and the dedup
// key for clients; two events may share a timestamp.
type TimelineEvent struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string  `gorm:"not null;index:idx_timeline_session_ts,priority:1" json:"session_id"`
	Timestamp  int64   `gorm:"not null;index:idx_timeline_session_ts,priority:2" json:"timestamp"`
	EventType  string  `gorm:"not null" json:"event_type"`
	Summary    string  `gorm:"not null;default:''" json:"summary"`
	ToolName   *string `gorm:"default:null" json:"tool_name"`
	ProviderID *string `gorm:"default:null" json:"provider_id"`
	ModelID    *string `gorm:"default:null" json:"model_id"`
}

// TokenUsage is one billable request's token/cost accounting. Rows are
// append-only; the parent session's token_total and cost_total are
// incremented in the same transaction that inserts the row, and nothing
// else ever writes those two fields.
type TokenUsage struct {
	ID               int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID        string  `gorm:"not null;index:idx_token_usage_session" json:"session_id"`
	ProviderID       string  `gorm:"not null;default:''" json:"provider_id"`
	ModelID          string  `gorm:"not null;default:''" json:"model_id"`
	Agent            string  `gorm:"not null;default:''" json:"agent"`
	TokensIn         int64   `gorm:"not null;default:0" json:"tokens_in"`
	TokensOut        int64   `gorm:"not null;default:0" json:"tokens_out"`
	TokensCacheRead  int64   `gorm:"not null;default:0" json:"tokens_cache_read"`
	TokensCacheWrite int64   `gorm:"not null;default:0" json:"tokens_cache_write"`
	TokensReasoning  int64   `gorm:"not null;default:0" json:"tokens_reasoning"`
	Cost             float64 `gorm:"not null;default:0" json:"cost"`
	DurationMS       int64   `gorm:"not null;default:0" json:"duration_ms"`
	Timestamp        int64   `gorm:"not null" json:"timestamp"`
}

// Instance is a host that has reported at least one session. Purely
// informational; last_seen is bumped on every session.created from that
// hostname.
type Instance struct {
	Hostname string `gorm:"primaryKey" json:"hostname"`
	LastSeen int64  `gorm:"not null" json:"last_seen"`
}

// UsageStat is one row of the aggregate usage report, grouped by
// provider and model.
type UsageStat struct {
	ProviderID  string  `json:"provider_id"`
	ModelID     string  `json:"model_id"`
	Requests    int64   `json:"requests"`
	TokensIn    int64   `json:"tokens_in"`
	TokensOut   int64   `json:"tokens_out"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}
