package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"batchcall-platform/internal/executor"

	"github.com/google/uuid"
)

// ValidationError is a locally recoverable input failure. It is surfaced to
// the caller and never reaches the executor.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExecutorError wraps a failure reported by the external action interface.
// The remote message is carried verbatim; the service never retries these
// automatically.
type ExecutorError struct {
	Action executor.ActionType
	Remote string
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor %s failed: %s", e.Action, e.Remote)
}

// ActionLogger records campaign lifecycle actions (append-only, best
// effort). internal/audit provides the production implementation.
type ActionLogger interface {
	LogCampaignAction(ctx context.Context, userID, batchID string, action, fromStatus, toStatus string) error
}

// DialSlotReleaser frees one per-batch dial slot. internal/dispatch provides
// the redis-backed implementation; the dispatcher acquires at dial initiation
// and the service releases on terminal outcomes.
type DialSlotReleaser interface {
	Release(ctx context.Context, batchID string) error
}

// Service owns the campaign lifecycle: it validates drafts, applies the
// state machine, persists through the repository and ships actions to the
// executor.
//
// The fire-and-confirm action boundary lives here:
// each action blocks on the executor's acknowledgement, but campaign
// progress happens out-of-process and arrives back via ApplyRecipientOutcome.
type Service struct {
	repo    Repository
	exec    executor.Client
	machine Machine
	audit   ActionLogger
	slots   DialSlotReleaser

	// loc is the reference zone used for schedule validation and series
	// advancement.
	loc   *time.Location
	clock func() time.Time
}

func NewService(repo Repository, exec executor.Client, machine Machine, audit ActionLogger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, exec: exec, machine: machine, audit: audit, loc: loc, clock: time.Now}
}

// SetDialSlots wires the dial slot limiter shared with the dispatcher.
// Without it, held slots fall back to their TTL.
func (s *Service) SetDialSlots(r DialSlotReleaser) { s.slots = r }

// Draft is the caller-supplied campaign payload. Recipients are expected to
// come out of the ingest package already merged and ordered.
type Draft struct {
	Name     string
	AgentID  string
	CallerID string

	SendNow     bool
	ScheduledAt *time.Time

	Window              Window
	ReservedConcurrency int
	Recurrence          Rule

	Recipients []Recipient
}

// Detail is a campaign with its ordered recipient list and, for recurring
// parents, the occurrence history.
type Detail struct {
	Campaign    Campaign     `json:"batch"`
	Recipients  []Recipient  `json:"recipients"`
	Occurrences []Occurrence `json:"occurrences,omitempty"`
}

func (s *Service) buildCampaign(userID string, d Draft, status Status, now time.Time) Campaign {
	w := d.Window
	if w.Start == "" && w.End == "" && len(w.Days) == 0 {
		w = DefaultWindow()
	}
	return Campaign{
		ID:                  uuid.NewString(),
		UserID:              userID,
		Name:                d.Name,
		AgentID:             d.AgentID,
		CallerID:            d.CallerID,
		Status:              status,
		SendNow:             d.SendNow,
		ScheduledAt:         d.ScheduledAt,
		Window:              w,
		ReservedConcurrency: d.ReservedConcurrency,
		MaxConcurrencyHint:  MaxConcurrency(d.ReservedConcurrency),
		Recurrence:          normalizeRule(d.Recurrence),
		TotalRecipients:     len(d.Recipients),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func normalizeRule(r Rule) Rule {
	if r.Type == "" {
		r.Type = RuleNone
	}
	if r.Type != RuleNone && r.End == "" {
		r.End = EndNever
	}
	return r
}

// CreateDraft stores a draft campaign. Drafts only require a name; full
// validation happens on submit.
func (s *Service) CreateDraft(ctx context.Context, userID string, d Draft) (Campaign, error) {
	if userID == "" {
		return Campaign{}, ErrInvalidArgument
	}
	if d.Name == "" {
		return Campaign{}, validationErrorf("name is required")
	}
	if !ValidReservedConcurrency(d.ReservedConcurrency) {
		return Campaign{}, validationErrorf("reserved_concurrency must be in [0, %d], got %d", TotalCapacity, d.ReservedConcurrency)
	}

	now := s.clock().In(s.loc)
	c := s.buildCampaign(userID, d, StatusDraft, now)
	recipients := s.assignRecipientIDs(c.ID, d.Recipients)

	if err := s.repo.CreateCampaign(ctx, c, recipients); err != nil {
		return Campaign{}, err
	}
	s.logAction(ctx, userID, c.ID, ActionCreate, "", StatusDraft)
	return c, nil
}

// Submit validates the full payload and hands the campaign to the executor.
// The campaign lands in running when send_now is set, otherwise scheduled.
// On create success for a recurring campaign the response confirms the first
// occurrence has begun.
func (s *Service) Submit(ctx context.Context, userID string, d Draft) (Campaign, error) {
	if userID == "" {
		return Campaign{}, ErrInvalidArgument
	}
	now := s.clock().In(s.loc)
	if err := s.validateSubmit(d, now); err != nil {
		return Campaign{}, err
	}

	status := StatusScheduled
	if d.SendNow {
		status = StatusRunning
	}
	c := s.buildCampaign(userID, d, status, now)
	if status == StatusRunning {
		t := now
		c.StartedAt = &t
	}
	recipients := s.assignRecipientIDs(c.ID, d.Recipients)

	if err := s.repo.CreateCampaign(ctx, c, recipients); err != nil {
		return Campaign{}, err
	}
	s.logAction(ctx, userID, c.ID, ActionSubmit, StatusDraft, status)

	req := executor.ActionRequest{
		Action:        executor.ActionCreate,
		BatchID:       c.ID,
		CreatePayload: s.createPayload(c, recipients),
	}
	resp, err := s.exec.Do(ctx, req)
	if err != nil {
		return c, fmt.Errorf("submit: %w", err)
	}
	if !resp.Success {
		return c, &ExecutorError{Action: executor.ActionCreate, Remote: resp.Error}
	}
	return c, nil
}

func (s *Service) validateSubmit(d Draft, now time.Time) error {
	if d.Name == "" {
		return validationErrorf("name is required")
	}
	if d.AgentID == "" {
		return validationErrorf("agent_id is required")
	}
	if d.CallerID == "" {
		return validationErrorf("caller_id is required")
	}
	if len(d.Recipients) == 0 {
		return validationErrorf("recipients must not be empty")
	}
	if !d.SendNow {
		if d.ScheduledAt == nil {
			return validationErrorf("scheduled_at is required unless send_now is set")
		}
		if !d.ScheduledAt.After(now) {
			return validationErrorf("scheduled_at must be in the future")
		}
	}
	if !ValidReservedConcurrency(d.ReservedConcurrency) {
		return validationErrorf("reserved_concurrency must be in [0, %d], got %d", TotalCapacity, d.ReservedConcurrency)
	}
	if d.Window.Start != "" || d.Window.End != "" || len(d.Window.Days) > 0 {
		if err := d.Window.Validate(); err != nil {
			return &ValidationError{Msg: err.Error()}
		}
	}
	if err := normalizeRule(d.Recurrence).Validate(); err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	return nil
}

// UpdateDraft replaces a draft's editable fields and recipient list. Only
// draft campaigns may be updated.
func (s *Service) UpdateDraft(ctx context.Context, userID, batchID string, d Draft) (Campaign, error) {
	existing, err := s.repo.GetCampaign(ctx, userID, batchID)
	if err != nil {
		return Campaign{}, err
	}
	if existing.Status != StatusDraft {
		return Campaign{}, &IllegalTransitionError{From: existing.Status, Action: ActionCreate}
	}
	if d.Name == "" {
		return Campaign{}, validationErrorf("name is required")
	}
	if !ValidReservedConcurrency(d.ReservedConcurrency) {
		return Campaign{}, validationErrorf("reserved_concurrency must be in [0, %d], got %d", TotalCapacity, d.ReservedConcurrency)
	}

	now := s.clock().In(s.loc)
	c := s.buildCampaign(userID, d, StatusDraft, now)
	c.ID = existing.ID
	c.CreatedAt = existing.CreatedAt
	recipients := s.assignRecipientIDs(c.ID, d.Recipients)

	if err := s.repo.UpdateDraft(ctx, c, recipients); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// Start moves a campaign to running and pokes the executor. Starting from a
// terminal state is a re-run: every recipient not already pending is
// re-queued and the campaign counters are zeroed.
//
// A recurring draft cannot be started directly: the series enters through
// Submit, which confirms the first occurrence with the executor.
func (s *Service) Start(ctx context.Context, userID, batchID string) error {
	c, err := s.repo.GetCampaign(ctx, userID, batchID)
	if err != nil {
		return err
	}
	if _, err := s.machine.Transition(c.Status, ActionStart); err != nil {
		return err
	}
	if c.Status == StatusDraft && c.IsRecurring() {
		return &IllegalTransitionError{From: c.Status, Action: ActionStart}
	}

	now := s.clock().In(s.loc)
	if err := s.repo.MarkRunning(ctx, batchID, IsRerun(c.Status), now); err != nil {
		return err
	}
	s.logAction(ctx, userID, batchID, ActionStart, c.Status, StatusRunning)

	resp, err := s.exec.Do(ctx, executor.ActionRequest{Action: executor.ActionStart, BatchID: batchID})
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if !resp.Success {
		return &ExecutorError{Action: executor.ActionStart, Remote: resp.Error}
	}
	return nil
}

// Cancel moves a campaign to cancelled and skips all not-yet-started
// recipients. Cancellation is cooperative: in-flight dials are owned by the
// executor and are not stopped here.
func (s *Service) Cancel(ctx context.Context, userID, batchID string) error {
	c, err := s.repo.GetCampaign(ctx, userID, batchID)
	if err != nil {
		return err
	}
	if _, err := s.machine.Transition(c.Status, ActionCancel); err != nil {
		return err
	}

	now := s.clock().In(s.loc)
	if err := s.repo.SetStatus(ctx, batchID, StatusCancelled, now); err != nil {
		return err
	}
	if err := s.repo.SkipPendingRecipients(ctx, batchID, now); err != nil {
		return err
	}
	s.logAction(ctx, userID, batchID, ActionCancel, c.Status, StatusCancelled)

	resp, err := s.exec.Do(ctx, executor.ActionRequest{Action: executor.ActionCancel, BatchID: batchID})
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if !resp.Success {
		return &ExecutorError{Action: executor.ActionCancel, Remote: resp.Error}
	}
	return nil
}

// PauseSeries suspends future occurrences of a recurring series. The
// in-flight occurrence, if any, is unaffected.
func (s *Service) PauseSeries(ctx context.Context, userID, batchID string) error {
	return s.seriesAction(ctx, userID, batchID, ActionPauseSeries, executor.ActionPauseSeries, StatusPaused)
}

// ResumeSeries returns a paused series to recurring with its next due time
// recomputed from now, so a pause that outlived the parked instant does not
// fire on the next sweep. A series whose end condition passed while paused
// completes instead.
func (s *Service) ResumeSeries(ctx context.Context, userID, batchID string) error {
	c, err := s.repo.GetCampaign(ctx, userID, batchID)
	if err != nil {
		return err
	}
	if _, err := s.machine.Transition(c.Status, ActionResumeSeries); err != nil {
		return err
	}

	now := s.clock().In(s.loc)
	next, err := NextRun(c.Recurrence, now, c.RunCount)
	if errors.Is(err, ErrSeriesEnded) {
		if err := s.repo.SetStatus(ctx, batchID, StatusCompleted, now); err != nil {
			return err
		}
		s.logAction(ctx, userID, batchID, ActionResumeSeries, c.Status, StatusCompleted)
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.repo.ScheduleNextRun(ctx, batchID, next, now); err != nil {
		return err
	}
	s.logAction(ctx, userID, batchID, ActionResumeSeries, c.Status, StatusRecurring)

	resp, err := s.exec.Do(ctx, executor.ActionRequest{Action: executor.ActionResumeSeries, BatchID: batchID})
	if err != nil {
		return fmt.Errorf("%s: %w", ActionResumeSeries, err)
	}
	if !resp.Success {
		return &ExecutorError{Action: executor.ActionResumeSeries, Remote: resp.Error}
	}
	return nil
}

func (s *Service) seriesAction(ctx context.Context, userID, batchID string, action Action, execAction executor.ActionType, to Status) error {
	c, err := s.repo.GetCampaign(ctx, userID, batchID)
	if err != nil {
		return err
	}
	if _, err := s.machine.Transition(c.Status, action); err != nil {
		return err
	}

	now := s.clock().In(s.loc)
	if err := s.repo.SetStatus(ctx, batchID, to, now); err != nil {
		return err
	}
	s.logAction(ctx, userID, batchID, action, c.Status, to)

	resp, err := s.exec.Do(ctx, executor.ActionRequest{Action: execAction, BatchID: batchID})
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !resp.Success {
		return &ExecutorError{Action: execAction, Remote: resp.Error}
	}
	return nil
}

// SeriesNext reports when a recurring campaign runs next, computed from ref
// in the service's reference zone. ErrSeriesEnded when the rule's end
// condition has been met.
func (s *Service) SeriesNext(ctx context.Context, userID, batchID string, ref time.Time) (time.Time, error) {
	c, err := s.repo.GetCampaign(ctx, userID, batchID)
	if err != nil {
		return time.Time{}, err
	}
	if !c.IsRecurring() {
		return time.Time{}, ErrSeriesEnded
	}
	return NextRun(c.Recurrence, ref.In(s.loc), c.RunCount)
}

// RetryRecipient resets one recipient in a terminal failure-like status back
// to pending and forces the parent campaign to running so the executor picks
// it up.
func (s *Service) RetryRecipient(ctx context.Context, userID, recipientID string) error {
	rec, err := s.repo.GetRecipient(ctx, recipientID)
	if err != nil {
		return err
	}
	c, err := s.repo.GetCampaign(ctx, userID, rec.BatchID)
	if err != nil {
		return err
	}
	if _, err := s.machine.Transition(c.Status, ActionRetryRecipient); err != nil {
		return err
	}
	if !rec.Status.Retryable() {
		return validationErrorf("recipient in %s status cannot be retried", rec.Status)
	}

	now := s.clock().In(s.loc)
	if err := s.repo.ResetRecipient(ctx, recipientID, now); err != nil {
		return err
	}
	if c.Status != StatusRunning {
		if err := s.repo.SetStatus(ctx, rec.BatchID, StatusRunning, now); err != nil {
			return err
		}
	}
	s.logAction(ctx, userID, rec.BatchID, ActionRetryRecipient, c.Status, StatusRunning)

	resp, err := s.exec.Do(ctx, executor.ActionRequest{Action: executor.ActionStart, BatchID: rec.BatchID})
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if !resp.Success {
		return &ExecutorError{Action: executor.ActionStart, Remote: resp.Error}
	}
	return nil
}

// Get returns a campaign with its ordered recipients and, for recurring
// parents, the run history.
func (s *Service) Get(ctx context.Context, userID, batchID string) (Detail, error) {
	c, err := s.repo.GetCampaign(ctx, userID, batchID)
	if err != nil {
		return Detail{}, err
	}
	recipients, err := s.repo.ListRecipients(ctx, batchID)
	if err != nil {
		return Detail{}, err
	}
	out := Detail{Campaign: c, Recipients: recipients}
	if c.IsRecurring() {
		occ, err := s.repo.ListOccurrences(ctx, batchID)
		if err != nil {
			return Detail{}, err
		}
		out.Occurrences = occ
	}
	return out, nil
}

// List returns the user's parent-level campaigns, newest first.
func (s *Service) List(ctx context.Context, userID string, status Status, limit, offset int) ([]Campaign, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListCampaigns(ctx, userID, status, limit, offset)
}

// ApplyRecipientOutcome applies one executor callback last-write-wins keyed
// by recipient id, updates campaign counters on terminal transitions and
// detects batch completion. Callbacks carrying a status outside the closed
// enum are refused, never stored.
func (s *Service) ApplyRecipientOutcome(ctx context.Context, cb executor.StatusCallback) error {
	next := RecipientStatus(cb.Status)
	if !next.Known() {
		return fmt.Errorf("%w: %q", executor.ErrUnknownStatus, cb.Status)
	}

	rec, err := s.repo.GetRecipient(ctx, cb.RecipientID)
	if err != nil {
		return err
	}
	if rec.BatchID != cb.BatchID {
		return ErrInvalidArgument
	}

	prev := rec.Status

	rec.Status = next
	if cb.ErrorMessage != "" {
		rec.ErrorMessage = cb.ErrorMessage
	}
	if cb.CallRecordID != "" {
		rec.CallRecordID = cb.CallRecordID
	}
	occurredAt := cb.OccurredAt
	if next.InFlight() && rec.AttemptedAt == nil {
		rec.AttemptedAt = &occurredAt
	}
	if isTerminalRecipient(next) {
		rec.CompletedAt = &occurredAt
	}
	if err := s.repo.UpdateRecipient(ctx, rec); err != nil {
		return err
	}

	// The dial slot held since initiation is freed as soon as the call
	// reaches a terminal state; the redis TTL remains the crash fallback.
	if s.slots != nil && isTerminalRecipient(next) && prev.InFlight() {
		_ = s.slots.Release(ctx, cb.BatchID)
	}

	// Counters move only on the first terminal observation to keep re-sent
	// callbacks from double counting.
	if isTerminalRecipient(next) && !isTerminalRecipient(prev) {
		completed, failed := 0, 0
		if next == RecipientCompleted {
			completed = 1
		} else if next == RecipientFailed || next == RecipientNoAnswer || next == RecipientBusy {
			failed = 1
		}
		if completed > 0 || failed > 0 {
			if err := s.repo.AddCounters(ctx, cb.BatchID, completed, failed); err != nil {
				return err
			}
		}
		_, err := s.FinishIfDone(ctx, cb.BatchID)
		return err
	}
	return nil
}

// FinishIfDone finishes a running campaign once nothing is pending or in
// flight. One-shot campaigns land in completed. A recurring campaign records
// the run as an occurrence, bumps its run count and is parked for the next
// due time; when the rule's end condition is met it completes instead.
//
// Both the callback path and the dispatcher sweep funnel through here.
func (s *Service) FinishIfDone(ctx context.Context, batchID string) (bool, error) {
	c, err := s.repo.GetCampaignByID(ctx, batchID)
	if err != nil {
		return false, err
	}
	if c.Status != StatusRunning {
		return false, nil
	}
	open, err := s.repo.CountRecipientsInStatus(ctx, batchID,
		RecipientPending, RecipientCalling, RecipientInitiated, RecipientRinging, RecipientConnected)
	if err != nil {
		return false, err
	}
	if open > 0 {
		return false, nil
	}

	now := s.clock().In(s.loc)
	if !c.IsRecurring() {
		return true, s.repo.SetStatus(ctx, batchID, StatusCompleted, now)
	}

	runNumber := c.RunCount + 1
	occ := Occurrence{
		ID:              uuid.NewString(),
		ParentID:        batchID,
		Number:          runNumber,
		Status:          StatusCompleted,
		TotalRecipients: c.TotalRecipients,
		CompletedCount:  c.CompletedCount,
		FailedCount:     c.FailedCount,
		StartedAt:       c.StartedAt,
		CompletedAt:     &now,
	}
	if err := s.repo.CreateOccurrence(ctx, occ); err != nil {
		return false, err
	}
	if err := s.repo.IncrementRunCount(ctx, batchID, now); err != nil {
		return false, err
	}

	ref := now
	if c.ScheduledAt != nil {
		ref = c.ScheduledAt.In(s.loc)
	}
	next, err := NextRun(c.Recurrence, ref, runNumber)
	if errors.Is(err, ErrSeriesEnded) {
		return true, s.repo.SetStatus(ctx, batchID, StatusCompleted, now)
	}
	if err != nil {
		return false, err
	}
	return true, s.repo.ScheduleNextRun(ctx, batchID, next, now)
}

func isTerminalRecipient(s RecipientStatus) bool {
	switch s {
	case RecipientCompleted, RecipientFailed, RecipientNoAnswer, RecipientBusy, RecipientSkipped, RecipientCancelled:
		return true
	default:
		return false
	}
}

func (s *Service) assignRecipientIDs(batchID string, recipients []Recipient) []Recipient {
	out := make([]Recipient, len(recipients))
	for i, r := range recipients {
		r.ID = uuid.NewString()
		r.BatchID = batchID
		if r.Status == "" {
			r.Status = RecipientPending
		}
		out[i] = r
	}
	return out
}

func (s *Service) createPayload(c Campaign, recipients []Recipient) *executor.CreatePayload {
	days := make([]int, len(c.Window.Days))
	for i, d := range c.Window.Days {
		days[i] = int(d)
	}
	p := &executor.CreatePayload{
		Name:                c.Name,
		AgentID:             c.AgentID,
		CallerID:            c.CallerID,
		Status:              string(c.Status),
		SendNow:             c.SendNow,
		ScheduledAt:         c.ScheduledAt,
		WindowStartTime:     c.Window.Start,
		WindowEndTime:       c.Window.End,
		WindowDays:          days,
		ReservedConcurrency: c.ReservedConcurrency,
		MaxConcurrency:      c.MaxConcurrencyHint,
	}
	if c.IsRecurring() {
		p.RecurrenceType = string(c.Recurrence.Type)
		p.RecurrenceInterval = c.Recurrence.Interval
		if c.Recurrence.End == EndAfterRuns {
			p.RecurrenceMaxRuns = c.Recurrence.MaxRuns
		}
		if c.Recurrence.End == EndOnDate && !c.Recurrence.EndDate.IsZero() {
			d := c.Recurrence.EndDate
			p.RecurrenceEndDate = &d
		}
	}
	for _, r := range recipients {
		p.Recipients = append(p.Recipients, executor.RecipientPayload{
			Name:        r.Name,
			PhoneNumber: r.PhoneNumber,
			SortOrder:   r.SortOrder,
		})
	}
	return p
}

func (s *Service) logAction(ctx context.Context, userID, batchID string, action Action, from, to Status) {
	if s.audit == nil {
		return
	}
	// Best effort; lifecycle flows never block on audit failures.
	_ = s.audit.LogCampaignAction(ctx, userID, batchID, string(action), string(from), string(to))
}

// IsNotFound reports whether err is the repository's not-found sentinel.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
