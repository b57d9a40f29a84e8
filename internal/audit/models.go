package audit

import "time"

// Event is an immutable, append-only audit log record of a campaign
// lifecycle action.
//
// Invariants:
// - Events are never updated or deleted.
// - user_id is required for ownership isolation.
// - Audit capture is best-effort; lifecycle flows never block on it.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	BatchID     string `json:"batch_id,omitempty" db:"batch_id"`
	RecipientID string `json:"recipient_id,omitempty" db:"recipient_id"`

	// Action is the lifecycle action requested (start, cancel, ...).
	Action string `json:"action,omitempty" db:"action"`
	// FromStatus and ToStatus capture the observed transition.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCampaignAction EventType = "campaign_action"
	EventTypeDispatch       EventType = "dispatch"
)
