package executor

import (
	"context"
	"time"
)

// Client is the boundary to the external execution service that actually
// places calls. Requests are fire-and-confirm: the call blocks on the
// remote acknowledgement, but campaign progress happens out-of-process.
//
// No action is idempotent at this interface; callers must avoid duplicate
// submission. Remote failures are surfaced verbatim and never retried here.
type Client interface {
	Do(ctx context.Context, req ActionRequest) (ActionResponse, error)
	HealthCheck(ctx context.Context) error
}

// ActionType is the discriminant of the single request shape the executor
// consumes.
type ActionType string

const (
	ActionCreate       ActionType = "create"
	ActionStart        ActionType = "start"
	ActionCancel       ActionType = "cancel"
	ActionPauseSeries  ActionType = "pause_series"
	ActionResumeSeries ActionType = "resume_series"
)

// ActionRequest carries one executor action. Create populates the embedded
// payload, which flattens into the request body; the rest only need BatchID.
type ActionRequest struct {
	Action ActionType `json:"action"`

	BatchID string `json:"batch_id,omitempty"`

	*CreatePayload
}

// CreatePayload is the full campaign payload for a create action.
// Types here are wire-level only; internal/campaign owns the domain model.
type CreatePayload struct {
	Name     string `json:"name"`
	AgentID  string `json:"agent_id,omitempty"`
	CallerID string `json:"caller_id"`
	Status   string `json:"status"`

	SendNow     bool       `json:"send_now"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	WindowStartTime string `json:"window_start_time"`
	WindowEndTime   string `json:"window_end_time"`
	WindowDays      []int  `json:"window_days"`

	ReservedConcurrency int `json:"reserved_concurrency"`
	MaxConcurrency      int `json:"max_concurrency"`

	RecurrenceType     string     `json:"recurrence_type,omitempty"`
	RecurrenceInterval int        `json:"recurrence_interval,omitempty"`
	RecurrenceMaxRuns  int        `json:"recurrence_max_runs,omitempty"`
	RecurrenceEndDate  *time.Time `json:"recurrence_end_date,omitempty"`

	Recipients []RecipientPayload `json:"recipients"`
}

type RecipientPayload struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	SortOrder   int    `json:"sort_order"`
}

// ActionResponse is the executor's acknowledgement. On create success for a
// recurring campaign, FirstRunStarted confirms the first occurrence has
// begun.
type ActionResponse struct {
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	BatchID         string `json:"batch_id,omitempty"`
	FirstRunStarted bool   `json:"first_run_started,omitempty"`
	Message         string `json:"message,omitempty"`
}
