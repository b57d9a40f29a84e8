package campaign

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("campaign: not found")
	ErrInvalidArgument = errors.New("campaign: invalid argument")
)

// Repository is the persistence contract for campaigns, recipients and
// occurrence rows.
//
// Ownership invariant: reads that take a userID must scope by it. Writes
// keyed by batch id alone are reserved for the dispatcher and executor
// callbacks, which act on behalf of the system.
type Repository interface {
	CreateCampaign(ctx context.Context, c Campaign, recipients []Recipient) error
	GetCampaign(ctx context.Context, userID, batchID string) (Campaign, error)
	// GetCampaignByID is unscoped; for dispatcher and callback paths only.
	GetCampaignByID(ctx context.Context, batchID string) (Campaign, error)
	// ListCampaigns returns the user's parent-level campaigns newest first.
	// Occurrence rows (ParentID set) are excluded. status filters when
	// non-empty.
	ListCampaigns(ctx context.Context, userID string, status Status, limit, offset int) ([]Campaign, error)
	// UpdateDraft replaces the editable fields and the recipient list of a
	// draft campaign.
	UpdateDraft(ctx context.Context, c Campaign, recipients []Recipient) error

	// SetStatus updates lifecycle state. Completed statuses also stamp
	// completed_at.
	SetStatus(ctx context.Context, batchID string, status Status, now time.Time) error
	// MarkRunning moves a campaign to running. When rerun is true all
	// recipients not already pending are reset and the campaign counters
	// are zeroed.
	MarkRunning(ctx context.Context, batchID string, rerun bool, now time.Time) error
	// SkipPendingRecipients marks all pending recipients skipped (cancel
	// path).
	SkipPendingRecipients(ctx context.Context, batchID string, now time.Time) error

	ListRecipients(ctx context.Context, batchID string) ([]Recipient, error)
	ListPendingRecipients(ctx context.Context, batchID string, limit int) ([]Recipient, error)
	CountRecipientsInStatus(ctx context.Context, batchID string, statuses ...RecipientStatus) (int, error)
	GetRecipient(ctx context.Context, recipientID string) (Recipient, error)
	// UpdateRecipient applies a status/error/call-record update keyed by
	// recipient id (last write observed wins).
	UpdateRecipient(ctx context.Context, r Recipient) error
	// ResetRecipient returns a recipient to pending and clears error and
	// timestamp fields (retry path).
	ResetRecipient(ctx context.Context, recipientID string, now time.Time) error

	AddCounters(ctx context.Context, batchID string, completedDelta, failedDelta int) error

	CreateOccurrence(ctx context.Context, o Occurrence) error
	ListOccurrences(ctx context.Context, parentID string) ([]Occurrence, error)
	IncrementRunCount(ctx context.Context, parentID string, now time.Time) error
	// ScheduleNextRun parks a recurring campaign between runs: status moves
	// to recurring and scheduled_at is set to the next run instant, so the
	// due query picks it up again.
	ScheduleNextRun(ctx context.Context, batchID string, next, now time.Time) error

	// ListDueScheduled returns scheduled and between-run recurring campaigns
	// whose scheduled_at has passed. ListRunning returns campaigns currently
	// running.
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]Campaign, error)
	ListRunning(ctx context.Context, limit int) ([]Campaign, error)
}
