package reporting

import (
	"context"
	"errors"

	"batchcall-platform/internal/campaign"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. The batch repositories
// (campaign.MemoryRepo, campaign.PostgresRepo) satisfy it directly.
//
// Methods must enforce user-id scoping on reads that take one.
type Repository interface {
	GetCampaign(ctx context.Context, userID, batchID string) (campaign.Campaign, error)
	ListCampaigns(ctx context.Context, userID string, status campaign.Status, limit, offset int) ([]campaign.Campaign, error)
	ListRecipients(ctx context.Context, batchID string) ([]campaign.Recipient, error)
	ListOccurrences(ctx context.Context, parentID string) ([]campaign.Occurrence, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// summaryPageSize bounds how many campaigns one summary reads per page.
const summaryPageSize = 200

func (s *Service) BatchesSummary(ctx context.Context, req BatchesSummaryRequest) (BatchesSummary, error) {
	if req.UserID == "" {
		return BatchesSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return BatchesSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return BatchesSummary{}, errors.New("reporting: repository not configured")
	}

	out := BatchesSummary{UserID: req.UserID}
	for offset := 0; ; offset += summaryPageSize {
		rows, err := s.repo.ListCampaigns(ctx, req.UserID, "", summaryPageSize, offset)
		if err != nil {
			return BatchesSummary{}, err
		}
		for _, c := range rows {
			if c.CreatedAt.Before(req.Range.From) || !c.CreatedAt.Before(req.Range.To) {
				continue
			}
			out.TotalBatches++
			out.TotalRecipients += c.TotalRecipients
			out.CompletedRecipients += c.CompletedCount
			out.FailedRecipients += c.FailedCount
			switch c.Status {
			case campaign.StatusDraft:
				out.DraftBatches++
			case campaign.StatusScheduled:
				out.ScheduledBatches++
			case campaign.StatusRunning:
				out.RunningBatches++
			case campaign.StatusRecurring:
				out.RecurringBatches++
			case campaign.StatusPaused:
				out.PausedBatches++
			case campaign.StatusCompleted:
				out.CompletedBatches++
			case campaign.StatusCancelled:
				out.CancelledBatches++
			case campaign.StatusFailed:
				out.FailedBatches++
			}
		}
		if len(rows) < summaryPageSize {
			break
		}
	}
	if out.TotalRecipients > 0 {
		out.CompletionRate = float64(out.CompletedRecipients) / float64(out.TotalRecipients)
	}
	return out, nil
}

func (s *Service) RecipientBreakdown(ctx context.Context, userID, batchID string) (RecipientBreakdown, error) {
	if userID == "" || batchID == "" {
		return RecipientBreakdown{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return RecipientBreakdown{}, errors.New("reporting: repository not configured")
	}

	// Ownership check before the unscoped recipient read.
	if _, err := s.repo.GetCampaign(ctx, userID, batchID); err != nil {
		return RecipientBreakdown{}, err
	}
	rows, err := s.repo.ListRecipients(ctx, batchID)
	if err != nil {
		return RecipientBreakdown{}, err
	}

	out := RecipientBreakdown{UserID: userID, BatchID: batchID}
	attempted := 0
	for _, r := range rows {
		out.Total++
		if r.Status != campaign.RecipientPending {
			attempted++
		}
		switch {
		case r.Status == campaign.RecipientPending:
			out.Pending++
		case r.Status.InFlight():
			out.InFlight++
		case r.Status == campaign.RecipientCompleted:
			out.Completed++
		case r.Status == campaign.RecipientFailed:
			out.Failed++
		case r.Status == campaign.RecipientNoAnswer:
			out.NoAnswer++
		case r.Status == campaign.RecipientBusy:
			out.Busy++
		case r.Status == campaign.RecipientSkipped:
			out.Skipped++
		case r.Status == campaign.RecipientCancelled:
			out.Cancelled++
		}
	}
	if attempted > 0 {
		out.ConnectRate = float64(out.Completed) / float64(attempted)
	}
	return out, nil
}

func (s *Service) SeriesReport(ctx context.Context, userID, batchID string) (SeriesReport, error) {
	if userID == "" || batchID == "" {
		return SeriesReport{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SeriesReport{}, errors.New("reporting: repository not configured")
	}

	c, err := s.repo.GetCampaign(ctx, userID, batchID)
	if err != nil {
		return SeriesReport{}, err
	}
	if !c.IsRecurring() {
		return SeriesReport{}, ErrInvalidRequest
	}

	occ, err := s.repo.ListOccurrences(ctx, batchID)
	if err != nil {
		return SeriesReport{}, err
	}

	out := SeriesReport{UserID: userID, BatchID: batchID}
	for _, o := range occ {
		out.Runs = append(out.Runs, RunStats{
			Number:          o.Number,
			TotalRecipients: o.TotalRecipients,
			CompletedCount:  o.CompletedCount,
			FailedCount:     o.FailedCount,
			StartedAt:       o.StartedAt,
			CompletedAt:     o.CompletedAt,
		})
		out.CompletedRecipients += o.CompletedCount
		out.FailedRecipients += o.FailedCount
	}
	out.TotalRuns = len(out.Runs)
	return out, nil
}
