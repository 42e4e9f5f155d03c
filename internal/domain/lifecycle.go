package domain

import (
	"errors"
	"time"
)

var (
	// ErrInvalidTransition is returned when the target status is not reachable.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotClosed is returned when reopening a ticket that is not closed.
	ErrNotClosed = errors.New("ticket is not closed")
)

// CLOSED is terminal; Reopen is the only way out.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed},
	TicketStatusInProgress: {TicketStatusResolved, TicketStatusClosed},
	TicketStatusResolved:   {TicketStatusClosed, TicketStatusInProgress},
	TicketStatusClosed:     {},
}

// CanTransition reports whether current may move to next. Staying put is always allowed.
func CanTransition(current, next TicketStatus) bool {
	if current == next {
		return true
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the ticket to target. changed is false for a self
// transition, in which case the ticket is left untouched.
func (t *Ticket) TransitionTo(target TicketStatus, now time.Time) (changed bool, err error) {
	if !target.Valid() || !CanTransition(t.Status, target) {
		return false, ErrInvalidTransition
	}
	if t.Status == target {
		return false, nil
	}
	t.Status = target
	if target == TicketStatusClosed {
		closedAt := now
		t.ClosedAt = &closedAt
	}
	t.UpdatedAt = now
	return true, nil
}

// Assign sets the support agent and starts work on an open ticket. It
// returns true when the assignment moved the ticket to IN_PROGRESS.
func (t *Ticket) Assign(supportID int64, supportName string, now time.Time) bool {
	id := supportID
	t.AssignedTo = &id
	t.AssignedName = supportName
	t.UpdatedAt = now
	if t.Status == TicketStatusOpen {
		t.Status = TicketStatusInProgress
		return true
	}
	return false
}

// Reopen brings a closed ticket back to IN_PROGRESS.
func (t *Ticket) Reopen(now time.Time) error {
	if t.Status != TicketStatusClosed {
		return ErrNotClosed
	}
	t.Status = TicketStatusInProgress
	t.ClosedAt = nil
	t.UpdatedAt = now
	return nil
}
