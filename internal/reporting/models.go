package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// BatchesSummaryRequest requests aggregated batch metrics.
// Ownership: UserID is required; the range filters on batch creation time.
type BatchesSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type BatchesSummary struct {
	UserID string `json:"user_id"`

	TotalBatches     int `json:"total_batches"`
	DraftBatches     int `json:"draft_batches"`
	ScheduledBatches int `json:"scheduled_batches"`
	RunningBatches   int `json:"running_batches"`
	RecurringBatches int `json:"recurring_batches"`
	PausedBatches    int `json:"paused_batches"`
	CompletedBatches int `json:"completed_batches"`
	CancelledBatches int `json:"cancelled_batches"`
	FailedBatches    int `json:"failed_batches"`

	TotalRecipients     int `json:"total_recipients"`
	CompletedRecipients int `json:"completed_recipients"`
	FailedRecipients    int `json:"failed_recipients"`

	// CompletionRate is completed recipients over total, 0 when empty.
	CompletionRate float64 `json:"completion_rate"`
}

// RecipientBreakdown is the per-status recipient census of one batch.
type RecipientBreakdown struct {
	UserID  string `json:"user_id"`
	BatchID string `json:"batch_id"`

	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	NoAnswer  int `json:"no_answer"`
	Busy      int `json:"busy"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`

	// ConnectRate is completed over attempted (everything past pending).
	ConnectRate float64 `json:"connect_rate"`
}

// SeriesReport is the run history of a recurring batch.
type SeriesReport struct {
	UserID  string `json:"user_id"`
	BatchID string `json:"batch_id"`

	Runs []RunStats `json:"runs"`

	TotalRuns           int `json:"total_runs"`
	CompletedRecipients int `json:"completed_recipients"`
	FailedRecipients    int `json:"failed_recipients"`
}

type RunStats struct {
	Number          int        `json:"occurrence_number"`
	TotalRecipients int        `json:"total_recipients"`
	CompletedCount  int        `json:"completed_count"`
	FailedCount     int        `json:"failed_count"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
