package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus   TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority TicketChangeType = "PRIORITY_CHANGE"
)

// TicketHistory is an append-only audit entry. OldValue and NewValue are
// stored as JSON objects keyed by the changed field.
type TicketHistory struct {
	ID            int64
	TicketID      int64
	ChangedByRole SenderRole
	ChangedByID   *int64
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}

// StatusChange builds an entry for a status move. Automatic marks moves the
// system made as a side effect of another operation.
func StatusChange(ticketID int64, from, to TicketStatus, automatic bool, at time.Time) *TicketHistory {
	newValue := map[string]any{"status": to}
	if automatic {
		newValue["automatic"] = true
	}
	return &TicketHistory{
		TicketID:   ticketID,
		ChangeType: ChangeTypeStatus,
		OldValue:   map[string]any{"status": from},
		NewValue:   newValue,
		CreatedAt:  at,
	}
}

func PriorityChange(ticketID int64, from, to TicketPriority, at time.Time) *TicketHistory {
	return &TicketHistory{
		TicketID:   ticketID,
		ChangeType: ChangeTypePriority,
		OldValue:   map[string]any{"priority": from},
		NewValue:   map[string]any{"priority": to},
		CreatedAt:  at,
	}
}

func AssigneeChange(ticketID int64, from, to *int64, at time.Time) *TicketHistory {
	return &TicketHistory{
		TicketID:   ticketID,
		ChangeType: ChangeTypeAssignee,
		OldValue:   map[string]any{"assigned_to": from},
		NewValue:   map[string]any{"assigned_to": to},
		CreatedAt:  at,
	}
}

// By stamps the actor on the entry.
func (h *TicketHistory) By(role SenderRole, id *int64) *TicketHistory {
	h.ChangedByRole = role
	h.ChangedByID = id
	return h
}
