package campaign

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository for tests and early development.
// It enforces user scoping on reads the same way the Postgres repository
// does.
type MemoryRepo struct {
	mu sync.Mutex

	campaigns   map[string]Campaign
	recipients  map[string]Recipient // keyed by recipient id
	occurrences map[string][]Occurrence
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		campaigns:   map[string]Campaign{},
		recipients:  map[string]Recipient{},
		occurrences: map[string][]Occurrence{},
	}
}

func (r *MemoryRepo) CreateCampaign(ctx context.Context, c Campaign, recipients []Recipient) error {
	if c.ID == "" || c.UserID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	for _, rec := range recipients {
		rec.BatchID = c.ID
		r.recipients[rec.ID] = rec
	}
	return nil
}

func (r *MemoryRepo) GetCampaign(ctx context.Context, userID, batchID string) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[batchID]
	if !ok || c.UserID != userID {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) GetCampaignByID(ctx context.Context, batchID string) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[batchID]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListCampaigns(ctx context.Context, userID string, status Status, limit, offset int) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Campaign, 0)
	for _, c := range r.campaigns {
		if c.UserID != userID || c.ParentID != "" {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) UpdateDraft(ctx context.Context, c Campaign, recipients []Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.campaigns[c.ID]
	if !ok || existing.UserID != c.UserID {
		return ErrNotFound
	}
	r.campaigns[c.ID] = c
	for id, rec := range r.recipients {
		if rec.BatchID == c.ID {
			delete(r.recipients, id)
		}
	}
	for _, rec := range recipients {
		rec.BatchID = c.ID
		r.recipients[rec.ID] = rec
	}
	return nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, batchID string, status Status, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[batchID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = now
	if status == StatusCompleted {
		t := now
		c.CompletedAt = &t
	}
	r.campaigns[batchID] = c
	return nil
}

func (r *MemoryRepo) MarkRunning(ctx context.Context, batchID string, rerun bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[batchID]
	if !ok {
		return ErrNotFound
	}
	if rerun {
		for id, rec := range r.recipients {
			if rec.BatchID != batchID || rec.Status == RecipientPending {
				continue
			}
			rec.Status = RecipientPending
			rec.ErrorMessage = ""
			rec.CallRecordID = ""
			rec.AttemptedAt = nil
			rec.CompletedAt = nil
			r.recipients[id] = rec
		}
		c.CompletedCount = 0
		c.FailedCount = 0
	}
	c.Status = StatusRunning
	t := now
	c.StartedAt = &t
	c.UpdatedAt = now
	c.CompletedAt = nil
	r.campaigns[batchID] = c
	return nil
}

func (r *MemoryRepo) SkipPendingRecipients(ctx context.Context, batchID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.recipients {
		if rec.BatchID == batchID && rec.Status == RecipientPending {
			rec.Status = RecipientSkipped
			r.recipients[id] = rec
		}
	}
	return nil
}

func (r *MemoryRepo) ListRecipients(ctx context.Context, batchID string) ([]Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listRecipientsLocked(batchID, nil, 0), nil
}

func (r *MemoryRepo) ListPendingRecipients(ctx context.Context, batchID string, limit int) ([]Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listRecipientsLocked(batchID, []RecipientStatus{RecipientPending}, limit), nil
}

func (r *MemoryRepo) listRecipientsLocked(batchID string, statuses []RecipientStatus, limit int) []Recipient {
	out := make([]Recipient, 0)
	for _, rec := range r.recipients {
		if rec.BatchID != batchID {
			continue
		}
		if len(statuses) > 0 && !statusIn(rec.Status, statuses) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepo) CountRecipientsInStatus(ctx context.Context, batchID string, statuses ...RecipientStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.recipients {
		if rec.BatchID == batchID && statusIn(rec.Status, statuses) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) GetRecipient(ctx context.Context, recipientID string) (Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[recipientID]
	if !ok {
		return Recipient{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) UpdateRecipient(ctx context.Context, rec Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recipients[rec.ID]; !ok {
		return ErrNotFound
	}
	r.recipients[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) ResetRecipient(ctx context.Context, recipientID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[recipientID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = RecipientPending
	rec.ErrorMessage = ""
	rec.CallRecordID = ""
	rec.AttemptedAt = nil
	rec.CompletedAt = nil
	r.recipients[recipientID] = rec
	return nil
}

func (r *MemoryRepo) AddCounters(ctx context.Context, batchID string, completedDelta, failedDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[batchID]
	if !ok {
		return ErrNotFound
	}
	c.CompletedCount += completedDelta
	c.FailedCount += failedDelta
	r.campaigns[batchID] = c
	return nil
}

func (r *MemoryRepo) CreateOccurrence(ctx context.Context, o Occurrence) error {
	if o.ParentID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occurrences[o.ParentID] = append(r.occurrences[o.ParentID], o)
	return nil
}

func (r *MemoryRepo) ListOccurrences(ctx context.Context, parentID string) ([]Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Occurrence, len(r.occurrences[parentID]))
	copy(out, r.occurrences[parentID])
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

func (r *MemoryRepo) IncrementRunCount(ctx context.Context, parentID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[parentID]
	if !ok {
		return ErrNotFound
	}
	c.RunCount++
	c.UpdatedAt = now
	r.campaigns[parentID] = c
	return nil
}

func (r *MemoryRepo) ScheduleNextRun(ctx context.Context, batchID string, next, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[batchID]
	if !ok {
		return ErrNotFound
	}
	t := next
	c.Status = StatusRecurring
	c.ScheduledAt = &t
	c.UpdatedAt = now
	r.campaigns[batchID] = c
	return nil
}

func (r *MemoryRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Campaign, 0)
	for _, c := range r.campaigns {
		if c.Status != StatusScheduled && c.Status != StatusRecurring {
			continue
		}
		if c.ScheduledAt == nil || c.ScheduledAt.After(now) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListRunning(ctx context.Context, limit int) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Campaign, 0)
	for _, c := range r.campaigns {
		if c.Status != StatusRunning {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func statusIn(s RecipientStatus, set []RecipientStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
