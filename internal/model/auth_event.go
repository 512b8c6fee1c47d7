package model

import "time"

// AuthEventKind classifies entries in the security audit trail.
type AuthEventKind string

const (
	AuthEventUserCreated    AuthEventKind = "user_created"
	AuthEventUserUpdated    AuthEventKind = "user_updated"
	AuthEventUserDeleted    AuthEventKind = "user_deleted"
	AuthEventLoginSucceeded AuthEventKind = "login_succeeded"
	AuthEventLoginFailed    AuthEventKind = "login_failed"
	AuthEventTokenRejected  AuthEventKind = "token_rejected"
)

// ValidAuthEventKinds contains every kind the audit pipeline accepts.
var ValidAuthEventKinds = []AuthEventKind{
	AuthEventUserCreated,
	AuthEventUserUpdated,
	AuthEventUserDeleted,
	AuthEventLoginSucceeded,
	AuthEventLoginFailed,
	AuthEventTokenRejected,
}

// IsValidAuthEventKind checks if a kind is known.
func IsValidAuthEventKind(kind AuthEventKind) bool {
	for _, k := range ValidAuthEventKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// AuthEvent is a persisted audit trail row. EventID is the Redis stream ID
// and doubles as the idempotency key for batch inserts.
type AuthEvent struct {
	ID         string        `json:"id"`
	EventID    string        `json:"event_id"`
	Kind       AuthEventKind `json:"kind"`
	Email      string        `json:"email"`
	Reason     string        `json:"reason,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	RemoteAddr string        `json:"remote_addr,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// DailyAuthStats is a per-day aggregate of the audit trail.
type DailyAuthStats struct {
	ID            string           `json:"id"`
	Date          time.Time        `json:"date"`
	TotalEvents   int64            `json:"total_events"`
	UniqueEmails  int64            `json:"unique_emails"`
	KindBreakdown map[string]int64 `json:"kind_breakdown"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
