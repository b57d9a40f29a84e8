// Package dispatch drives due campaigns: it promotes scheduled batches,
// respects call windows and concurrency caps, hands pending recipients to
// the executor and finishes runs that have drained.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"batchcall-platform/internal/campaign"
	"batchcall-platform/internal/executor"
)

const (
	// DefaultChunkSize bounds how many recipients one batch may dial per
	// tick.
	DefaultChunkSize = 5

	// promotionLimit and runningLimit bound per-tick sweep size.
	promotionLimit = 50
	runningLimit   = 50
)

// SlotLimiter caps concurrent dial initiations per batch across processor
// instances.
type SlotLimiter interface {
	Acquire(ctx context.Context, batchID string, limit int) (bool, error)
	Release(ctx context.Context, batchID string) error
}

// Lifecycle finishes a drained run. campaign.Service provides the production
// implementation.
type Lifecycle interface {
	FinishIfDone(ctx context.Context, batchID string) (bool, error)
}

type Processor struct {
	repo   campaign.Repository
	dialer executor.Dialer
	slots  SlotLimiter
	life   Lifecycle
	log    *slog.Logger

	loc   *time.Location
	clock func() time.Time

	// ChunkSize overrides DefaultChunkSize when > 0.
	ChunkSize int
}

func NewProcessor(repo campaign.Repository, dialer executor.Dialer, slots SlotLimiter, life Lifecycle, log *slog.Logger, loc *time.Location) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Processor{repo: repo, dialer: dialer, slots: slots, life: life, log: log, loc: loc, clock: time.Now}
}

func (p *Processor) chunkSize() int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return DefaultChunkSize
}

// TickSummary reports what one sweep did.
type TickSummary struct {
	Promoted int `json:"promoted"`
	Dialed   int `json:"dialed"`
	Finished int `json:"finished"`
}

// Tick runs one sweep: promote due scheduled (and between-run recurring)
// campaigns to running, then process every running campaign. Per-batch
// failures are logged and do not abort the sweep.
func (p *Processor) Tick(ctx context.Context) (TickSummary, error) {
	var sum TickSummary
	now := p.clock().In(p.loc)

	due, err := p.repo.ListDueScheduled(ctx, now, promotionLimit)
	if err != nil {
		return sum, err
	}
	for _, c := range due {
		// A recurring campaign coming back around needs its recipients
		// re-queued and counters zeroed.
		rerun := c.Status == campaign.StatusRecurring
		if err := p.repo.MarkRunning(ctx, c.ID, rerun, now); err != nil {
			p.log.Error("promotion failed", "batch_id", c.ID, "error", err)
			continue
		}
		sum.Promoted++
		p.log.Info("batch promoted", "batch_id", c.ID, "rerun", rerun)
	}

	running, err := p.repo.ListRunning(ctx, runningLimit)
	if err != nil {
		return sum, err
	}
	for _, c := range running {
		res, err := p.ProcessBatch(ctx, c)
		if err != nil {
			p.log.Error("batch processing failed", "batch_id", c.ID, "error", err)
			continue
		}
		sum.Dialed += res.Dialed
		if res.Finished {
			sum.Finished++
		}
	}
	return sum, nil
}

// BatchResult reports what processing one running campaign did.
type BatchResult struct {
	BatchID  string
	Dialed   int
	Finished bool
	// Skipped names why no dialing happened ("outside_window",
	// "no_capacity", "slots_exhausted"), empty otherwise.
	Skipped string
}

// ProcessBatch dials as many pending recipients as the call window, the
// concurrency allocation and the chunk size permit, then finishes the run if
// it has drained.
func (p *Processor) ProcessBatch(ctx context.Context, c campaign.Campaign) (BatchResult, error) {
	res := BatchResult{BatchID: c.ID}
	if c.Status != campaign.StatusRunning {
		return res, nil
	}

	now := p.clock().In(p.loc)
	if !campaign.InWindow(now, c.Window) {
		res.Skipped = "outside_window"
		return res, nil
	}

	limit := campaign.MaxConcurrency(c.ReservedConcurrency)
	if limit == 0 {
		res.Skipped = "no_capacity"
		return res, nil
	}

	active, err := p.repo.CountRecipientsInStatus(ctx, c.ID,
		campaign.RecipientCalling, campaign.RecipientInitiated, campaign.RecipientRinging, campaign.RecipientConnected)
	if err != nil {
		return res, err
	}

	free := limit - active
	if free > p.chunkSize() {
		free = p.chunkSize()
	}
	if free > 0 {
		dialed, skipped, err := p.dialPending(ctx, c, limit, free, now)
		if err != nil {
			return res, err
		}
		res.Dialed = dialed
		res.Skipped = skipped
	}

	finished, err := p.life.FinishIfDone(ctx, c.ID)
	if err != nil {
		return res, err
	}
	res.Finished = finished
	if finished {
		p.log.Info("batch run finished", "batch_id", c.ID)
	}
	return res, nil
}

func (p *Processor) dialPending(ctx context.Context, c campaign.Campaign, limit, free int, now time.Time) (int, string, error) {
	pending, err := p.repo.ListPendingRecipients(ctx, c.ID, free)
	if err != nil {
		return 0, "", err
	}

	dialed := 0
	for _, rec := range pending {
		ok, err := p.slots.Acquire(ctx, c.ID, limit)
		if err != nil {
			return dialed, "", err
		}
		if !ok {
			return dialed, "slots_exhausted", nil
		}

		t := now
		rec.Status = campaign.RecipientCalling
		rec.AttemptedAt = &t
		if err := p.repo.UpdateRecipient(ctx, rec); err != nil {
			_ = p.slots.Release(ctx, c.ID)
			return dialed, "", err
		}

		out, err := p.dialer.InitiateCall(ctx, executor.DialRequest{
			BatchID:     c.ID,
			RecipientID: rec.ID,
			UserID:      c.UserID,
			PhoneNumber: rec.PhoneNumber,
			CallerID:    c.CallerID,
			AgentID:     c.AgentID,
		})
		if err != nil || out.Error != "" {
			msg := out.Error
			if err != nil {
				msg = err.Error()
			}
			p.failRecipient(ctx, c.ID, rec, msg, now)
			_ = p.slots.Release(ctx, c.ID)
			continue
		}

		rec.Status = campaign.RecipientInitiated
		rec.CallRecordID = out.CallRecordID
		if err := p.repo.UpdateRecipient(ctx, rec); err != nil {
			return dialed, "", err
		}
		dialed++
	}
	return dialed, "", nil
}

// failRecipient marks a dial-initiation failure terminal. Errors here are
// logged, not returned: the sweep moves on to the next recipient.
func (p *Processor) failRecipient(ctx context.Context, batchID string, rec campaign.Recipient, msg string, now time.Time) {
	t := now
	rec.Status = campaign.RecipientFailed
	rec.ErrorMessage = msg
	rec.CompletedAt = &t
	if err := p.repo.UpdateRecipient(ctx, rec); err != nil {
		p.log.Error("recipient update failed", "recipient_id", rec.ID, "error", err)
		return
	}
	if err := p.repo.AddCounters(ctx, batchID, 0, 1); err != nil {
		p.log.Error("counter update failed", "batch_id", batchID, "error", err)
	}
	p.log.Warn("dial initiation failed", "batch_id", batchID, "recipient_id", rec.ID, "error", msg)
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum, err := p.Tick(ctx)
			if err != nil {
				p.log.Error("dispatch tick failed", "error", err)
				continue
			}
			if sum.Promoted > 0 || sum.Dialed > 0 || sum.Finished > 0 {
				p.log.Info("dispatch tick", "promoted", sum.Promoted, "dialed", sum.Dialed, "finished", sum.Finished)
			}
		}
	}
}
