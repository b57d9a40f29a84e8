package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to end users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.UserID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCampaignAction records one lifecycle action and the transition it
// caused. Satisfies campaign.ActionLogger.
func (s *Service) LogCampaignAction(ctx context.Context, userID, batchID string, action, fromStatus, toStatus string) error {
	return s.Append(ctx, Event{
		UserID:     userID,
		Type:       EventTypeCampaignAction,
		BatchID:    batchID,
		Action:     action,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
	})
}

// LogDispatch records a dispatcher decision for a batch (window closed,
// slots exhausted, chunk processed, ...).
func (s *Service) LogDispatch(ctx context.Context, userID, batchID, message, metadata string) error {
	return s.Append(ctx, Event{
		UserID:   userID,
		Type:     EventTypeDispatch,
		BatchID:  batchID,
		Message:  message,
		Metadata: metadata,
	})
}
