package campaign

import "fmt"

// Action is the closed set of lifecycle actions a caller may request.
type Action string

const (
	ActionCreate         Action = "create"
	ActionSubmit         Action = "submit"
	ActionStart          Action = "start"
	ActionCancel         Action = "cancel"
	ActionPauseSeries    Action = "pause_series"
	ActionResumeSeries   Action = "resume_series"
	ActionRetryRecipient Action = "retry_recipient"
)

// IllegalTransitionError reports an action requested from a state that does
// not permit it. The campaign's state is never silently coerced.
type IllegalTransitionError struct {
	From   Status
	Action Action
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s batch in %s status", e.Action, e.From)
}

// Machine validates lifecycle transitions. It is stateless: callers own the
// campaign record and pass its current status in.
//
// StrictStart controls start-on-running behavior: when false (the default),
// starting an already-running campaign is accepted as a no-op with respect
// to already-attempted recipients; when true it is refused.
type Machine struct {
	StrictStart bool
}

// Transition returns the status a campaign moves to when action is applied
// from from, or an IllegalTransitionError if the action is not legal there.
//
// ActionSubmit callers pass the resulting status themselves (running vs
// scheduled depends on send_now); Transition only validates legality.
func (m Machine) Transition(from Status, action Action) (Status, error) {
	switch action {
	case ActionStart:
		if from == StatusRunning {
			if m.StrictStart {
				return from, &IllegalTransitionError{From: from, Action: action}
			}
			return StatusRunning, nil
		}
		switch from {
		case StatusDraft, StatusScheduled, StatusPaused, StatusCancelled, StatusFailed, StatusCompleted:
			return StatusRunning, nil
		}
	case ActionCancel:
		switch from {
		case StatusScheduled, StatusRunning, StatusRecurring, StatusPaused:
			return StatusCancelled, nil
		}
	case ActionPauseSeries:
		if from == StatusRecurring {
			return StatusPaused, nil
		}
	case ActionResumeSeries:
		if from == StatusPaused {
			return StatusRecurring, nil
		}
	case ActionSubmit:
		if from == StatusDraft {
			return StatusScheduled, nil
		}
	case ActionRetryRecipient:
		// Legal from any non-draft state; a terminal campaign is forced back
		// to running so the executor picks the recipient up.
		if from != StatusDraft {
			return StatusRunning, nil
		}
	}
	return from, &IllegalTransitionError{From: from, Action: action}
}

// IsRerun reports whether starting from this status re-queues recipients
// that have not yet succeeded.
func IsRerun(from Status) bool {
	switch from {
	case StatusCancelled, StatusFailed, StatusCompleted:
		return true
	default:
		return false
	}
}
