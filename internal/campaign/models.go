package campaign

import "time"

// Campaign is a user-owned bulk outbound-call batch.
//
// Ownership invariant: UserID is required on every row; all repository
// queries are scoped by it.
//
// MaxConcurrency is derived from ReservedConcurrency and is recomputed on
// every change (see MaxConcurrency in concurrency.go). The stored column is
// advisory capacity information for the executor, never authoritative.
type Campaign struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Name     string `json:"name" db:"name"`
	AgentID  string `json:"agent_id,omitempty" db:"agent_id"`
	CallerID string `json:"caller_id" db:"caller_id"`

	Status Status `json:"status" db:"status"`

	SendNow     bool       `json:"send_now" db:"send_now"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`

	Window Window `json:"window"`

	ReservedConcurrency int `json:"reserved_concurrency" db:"reserved_concurrency"`
	// MaxConcurrencyHint mirrors MaxConcurrency(ReservedConcurrency) at write
	// time for the executor's benefit.
	MaxConcurrencyHint int `json:"max_concurrency" db:"max_concurrency"`

	Recurrence Rule `json:"recurrence"`
	// RunCount is the number of completed occurrences of a recurring series.
	RunCount int `json:"recurrence_run_count" db:"recurrence_run_count"`

	// ParentID is set on occurrence rows created for a recurring series.
	ParentID string `json:"parent_batch_id,omitempty" db:"parent_batch_id"`

	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	CompletedCount  int `json:"completed_count" db:"completed_count"`
	FailedCount     int `json:"failed_count" db:"failed_count"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// IsRecurring reports whether this campaign is the parent of a series.
func (c Campaign) IsRecurring() bool { return c.Recurrence.Type != RuleNone }

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusRecurring Status = "recurring"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final state. Paused is resumable and
// therefore not terminal.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Occurrence is one concrete run of a recurring campaign.
// Number is 1-based and increases monotonically per parent.
type Occurrence struct {
	ID       string `json:"id" db:"id"`
	ParentID string `json:"parent_batch_id" db:"parent_batch_id"`
	Number   int    `json:"occurrence_number" db:"occurrence_number"`

	Status Status `json:"status" db:"status"`

	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	CompletedCount  int `json:"completed_count" db:"completed_count"`
	FailedCount     int `json:"failed_count" db:"failed_count"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Recipient is one phone number to dial within a campaign.
//
// Identity (PhoneNumber + SortOrder) is immutable once submitted; only status
// and error fields mutate, and only via executor callbacks or an explicit
// retry.
type Recipient struct {
	ID      string `json:"id" db:"id"`
	BatchID string `json:"batch_id" db:"batch_id"`

	Name        string `json:"name" db:"name"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`
	SortOrder   int    `json:"sort_order" db:"sort_order"`

	Status       RecipientStatus `json:"status" db:"status"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	CallRecordID string          `json:"call_record_id,omitempty" db:"call_record_id"`

	AttemptedAt *time.Time `json:"attempted_at,omitempty" db:"attempted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientCalling   RecipientStatus = "calling"
	RecipientInitiated RecipientStatus = "initiated"
	RecipientRinging   RecipientStatus = "ringing"
	RecipientConnected RecipientStatus = "connected"
	RecipientCompleted RecipientStatus = "completed"
	RecipientFailed    RecipientStatus = "failed"
	RecipientNoAnswer  RecipientStatus = "no_answer"
	RecipientBusy      RecipientStatus = "busy"
	RecipientSkipped   RecipientStatus = "skipped"
	RecipientCancelled RecipientStatus = "cancelled"
)

// Known reports whether s is one of the defined recipient statuses.
func (s RecipientStatus) Known() bool {
	switch s {
	case RecipientPending, RecipientCalling, RecipientInitiated, RecipientRinging, RecipientConnected,
		RecipientCompleted, RecipientFailed, RecipientNoAnswer, RecipientBusy, RecipientSkipped, RecipientCancelled:
		return true
	default:
		return false
	}
}

// Retryable reports whether a recipient in this status may be individually
// retried back to pending.
func (s RecipientStatus) Retryable() bool {
	switch s {
	case RecipientFailed, RecipientNoAnswer, RecipientBusy, RecipientSkipped, RecipientCancelled:
		return true
	default:
		return false
	}
}

// InFlight reports whether the recipient occupies a dial slot.
func (s RecipientStatus) InFlight() bool {
	switch s {
	case RecipientCalling, RecipientInitiated, RecipientRinging, RecipientConnected:
		return true
	default:
		return false
	}
}
