package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"batchcall-platform/internal/campaign"
	"batchcall-platform/internal/executor"
)

type stubDialer struct {
	mu    sync.Mutex
	calls []executor.DialRequest
	// failPhones reject dial initiation for matching numbers.
	failPhones map[string]bool
}

func (d *stubDialer) InitiateCall(ctx context.Context, req executor.DialRequest) (executor.DialResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req)
	if d.failPhones[req.PhoneNumber] {
		return executor.DialResult{Error: "number unreachable"}, nil
	}
	return executor.DialResult{CallRecordID: "cr-" + req.RecipientID}, nil
}

type stubClient struct{}

func (stubClient) Do(ctx context.Context, req executor.ActionRequest) (executor.ActionResponse, error) {
	return executor.ActionResponse{Success: true}, nil
}
func (stubClient) HealthCheck(ctx context.Context) error { return nil }

func testClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func seedCampaign(t *testing.T, repo *campaign.MemoryRepo, c campaign.Campaign, recipients int) campaign.Campaign {
	t.Helper()
	if c.ID == "" {
		c.ID = "b-" + c.Name
	}
	if c.UserID == "" {
		c.UserID = "u1"
	}
	if c.CallerID == "" {
		c.CallerID = "+14155550100"
	}
	if c.Window.Start == "" {
		c.Window = campaign.DefaultWindow()
	}
	c.TotalRecipients = recipients
	recs := make([]campaign.Recipient, recipients)
	for i := range recs {
		recs[i] = campaign.Recipient{
			ID:          fmt.Sprintf("%s-r%d", c.ID, i),
			BatchID:     c.ID,
			Name:        fmt.Sprintf("r%d", i),
			PhoneNumber: fmt.Sprintf("+1415555%04d", i),
			SortOrder:   i,
			Status:      campaign.RecipientPending,
		}
	}
	if err := repo.CreateCampaign(context.Background(), c, recs); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return c
}

func newTestProcessor(t *testing.T, repo *campaign.MemoryRepo, dialer *stubDialer, at time.Time) *Processor {
	t.Helper()
	svc := campaign.NewService(repo, stubClient{}, campaign.Machine{}, nil, time.UTC)
	p := NewProcessor(repo, dialer, UnlimitedSlots{}, svc, slog.Default(), time.UTC)
	p.clock = testClock(at)
	return p
}

func TestProcessor_PromotesDueScheduled(t *testing.T) {
	repo := campaign.NewMemoryRepo()
	dialer := &stubDialer{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	due := now.Add(-time.Minute)
	seedCampaign(t, repo, campaign.Campaign{Name: "due", Status: campaign.StatusScheduled, ScheduledAt: &due}, 2)
	future := now.Add(time.Hour)
	seedCampaign(t, repo, campaign.Campaign{Name: "later", Status: campaign.StatusScheduled, ScheduledAt: &future}, 2)

	p := newTestProcessor(t, repo, dialer, now)
	sum, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sum.Promoted != 1 {
		t.Fatalf("expected 1 promotion, got %d", sum.Promoted)
	}
	if sum.Dialed != 2 {
		t.Fatalf("expected 2 dials, got %d", sum.Dialed)
	}

	got, _ := repo.GetCampaignByID(context.Background(), "b-later")
	if got.Status != campaign.StatusScheduled {
		t.Fatalf("future campaign should stay scheduled, got %s", got.Status)
	}
}

func TestProcessor_ChunkAndConcurrencyBound(t *testing.T) {
	repo := campaign.NewMemoryRepo()
	dialer := &stubDialer{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// reserved 18 leaves an allocation of 2 out of a 5-recipient chunk.
	c := seedCampaign(t, repo, campaign.Campaign{Name: "tight", Status: campaign.StatusRunning, ReservedConcurrency: 18}, 10)

	p := newTestProcessor(t, repo, dialer, now)
	res, err := p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Dialed != 2 {
		t.Fatalf("expected 2 dials, got %d", res.Dialed)
	}

	// With both slots occupied in flight, the next sweep dials nothing.
	res, err = p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Dialed != 0 {
		t.Fatalf("expected no dials with slots in flight, got %d", res.Dialed)
	}

	recs, _ := repo.ListRecipients(context.Background(), c.ID)
	inFlight := 0
	for _, r := range recs {
		if r.Status == campaign.RecipientInitiated {
			if r.CallRecordID == "" {
				t.Fatalf("expected call record id on %s", r.ID)
			}
			inFlight++
		}
	}
	if inFlight != 2 {
		t.Fatalf("expected 2 initiated recipients, got %d", inFlight)
	}
}

func TestProcessor_ZeroAllocationSkips(t *testing.T) {
	repo := campaign.NewMemoryRepo()
	dialer := &stubDialer{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c := seedCampaign(t, repo, campaign.Campaign{Name: "full", Status: campaign.StatusRunning, ReservedConcurrency: 20}, 3)

	p := newTestProcessor(t, repo, dialer, now)
	res, err := p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Skipped != "no_capacity" || res.Dialed != 0 {
		t.Fatalf("expected no_capacity skip, got %+v", res)
	}
}

func TestProcessor_RespectsWindow(t *testing.T) {
	repo := campaign.NewMemoryRepo()
	dialer := &stubDialer{}
	// Saturday noon, window is weekday business hours.
	now := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)

	c := seedCampaign(t, repo, campaign.Campaign{
		Name:   "weekdays",
		Status: campaign.StatusRunning,
		Window: campaign.Window{Start: "09:00", End: "17:00", Days: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
	}, 3)

	p := newTestProcessor(t, repo, dialer, now)
	res, err := p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Skipped != "outside_window" || res.Dialed != 0 {
		t.Fatalf("expected outside_window skip, got %+v", res)
	}
	if len(dialer.calls) != 0 {
		t.Fatalf("expected no dial attempts, got %d", len(dialer.calls))
	}
}

func TestProcessor_DialFailureMarksRecipientFailed(t *testing.T) {
	repo := campaign.NewMemoryRepo()
	dialer := &stubDialer{failPhones: map[string]bool{"+14155550000": true}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c := seedCampaign(t, repo, campaign.Campaign{Name: "flaky", Status: campaign.StatusRunning}, 2)

	p := newTestProcessor(t, repo, dialer, now)
	res, err := p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Dialed != 1 {
		t.Fatalf("expected 1 successful dial, got %d", res.Dialed)
	}

	rec, _ := repo.GetRecipient(context.Background(), c.ID+"-r0")
	if rec.Status != campaign.RecipientFailed || rec.ErrorMessage != "number unreachable" {
		t.Fatalf("expected failed recipient, got %+v", rec)
	}
	got, _ := repo.GetCampaignByID(context.Background(), c.ID)
	if got.FailedCount != 1 {
		t.Fatalf("expected failed count 1, got %d", got.FailedCount)
	}
}

type denySlots struct{}

func (denySlots) Acquire(ctx context.Context, batchID string, limit int) (bool, error) {
	return false, nil
}
func (denySlots) Release(ctx context.Context, batchID string) error { return nil }

func TestProcessor_SlotExhaustionStopsDialing(t *testing.T) {
	repo := campaign.NewMemoryRepo()
	dialer := &stubDialer{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c := seedCampaign(t, repo, campaign.Campaign{Name: "slotless", Status: campaign.StatusRunning}, 3)

	svc := campaign.NewService(repo, stubClient{}, campaign.Machine{}, nil, time.UTC)
	p := NewProcessor(repo, dialer, denySlots{}, svc, slog.Default(), time.UTC)
	p.clock = testClock(now)

	res, err := p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Skipped != "slots_exhausted" || res.Dialed != 0 {
		t.Fatalf("expected slots_exhausted skip, got %+v", res)
	}
}

// countingSlots emulates the redis counter: a slot stays held between
// Acquire and Release regardless of database state.
type countingSlots struct {
	mu       sync.Mutex
	held     map[string]int
	capacity int
}

func (s *countingSlots) Acquire(ctx context.Context, batchID string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		s.held = map[string]int{}
	}
	if s.held[batchID] >= s.capacity {
		return false, nil
	}
	s.held[batchID]++
	return true, nil
}

func (s *countingSlots) Release(ctx context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held[batchID] > 0 {
		s.held[batchID]--
	}
	return nil
}

func TestProcessor_OutcomesFreeSlotsForNextChunk(t *testing.T) {
	repo := campaign.NewMemoryRepo()
	dialer := &stubDialer{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c := seedCampaign(t, repo, campaign.Campaign{Name: "rolling", Status: campaign.StatusRunning}, 10)

	slots := &countingSlots{capacity: 5}
	svc := campaign.NewService(repo, stubClient{}, campaign.Machine{}, nil, time.UTC)
	svc.SetDialSlots(slots)
	p := NewProcessor(repo, dialer, slots, svc, slog.Default(), time.UTC)
	p.clock = testClock(now)

	res, err := p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Dialed != 5 {
		t.Fatalf("expected first chunk of 5 dials, got %d", res.Dialed)
	}

	// Terminal callbacks for the first chunk release their slots.
	recs, _ := repo.ListRecipients(context.Background(), c.ID)
	for _, r := range recs {
		if r.Status != campaign.RecipientInitiated {
			continue
		}
		err := svc.ApplyRecipientOutcome(context.Background(), executor.StatusCallback{
			BatchID:     c.ID,
			RecipientID: r.ID,
			Status:      string(campaign.RecipientCompleted),
			OccurredAt:  now.Add(time.Minute),
		})
		if err != nil {
			t.Fatalf("apply outcome: %v", err)
		}
	}

	res, err = p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Dialed != 5 {
		t.Fatalf("expected second chunk of 5 dials after outcomes, got %d", res.Dialed)
	}
}

func TestProcessor_RecurringRunComesBackAround(t *testing.T) {
	repo := campaign.NewMemoryRepo()
	dialer := &stubDialer{failPhones: map[string]bool{"+14155550000": true, "+14155550001": true}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c := seedCampaign(t, repo, campaign.Campaign{
		Name:       "series",
		Status:     campaign.StatusRunning,
		Recurrence: campaign.Rule{Type: campaign.RuleDaily, Interval: 1, End: campaign.EndNever},
	}, 2)

	// Every dial fails, so one sweep drains the run entirely.
	p := newTestProcessor(t, repo, dialer, now)
	res, err := p.ProcessBatch(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Finished {
		t.Fatalf("expected drained run to finish")
	}

	got, _ := repo.GetCampaignByID(context.Background(), c.ID)
	if got.Status != campaign.StatusRecurring || got.RunCount != 1 {
		t.Fatalf("expected parked recurring run, got %s run_count=%d", got.Status, got.RunCount)
	}
	if got.ScheduledAt == nil {
		t.Fatalf("expected next run scheduled")
	}

	// The next day's sweep promotes it again with recipients re-queued.
	p.clock = testClock(got.ScheduledAt.Add(time.Minute))
	sum, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sum.Promoted != 1 {
		t.Fatalf("expected promotion, got %+v", sum)
	}
	got, _ = repo.GetCampaignByID(context.Background(), c.ID)
	if got.FailedCount != 2 {
		// Rerun zeroes counters, then both dials fail again this sweep.
		t.Fatalf("expected 2 failures in second run, got %d", got.FailedCount)
	}
}
