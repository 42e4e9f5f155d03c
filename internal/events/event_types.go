package events

import (
	"time"

	"github.com/spec-kit/support-ticketing/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventTicketRead            EventType = "ticket_read"
	EventTicketDeleted         EventType = "ticket_deleted"
)

// AllEventTypes lists every event the service emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventTicketMessageAdded,
	EventTicketRead,
	EventTicketDeleted,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role   domain.SenderRole `json:"role"`
	UserID *int64            `json:"user_id,omitempty"`
	Email  string            `json:"email,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category  domain.TicketCategory `json:"category"`
	Priority  domain.TicketPriority `json:"priority"`
	Subject   string                `json:"subject"`
	OrderID   *int64                `json:"order_id,omitempty"`
	UserEmail string                `json:"user_email"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Automatic bool                `json:"automatic,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignedTo   *int64 `json:"assigned_to,omitempty"`
	AssignedName string `json:"assigned_name"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   int64             `json:"message_id"`
	SenderRole  domain.SenderRole `json:"sender_role"`
	SenderID    *int64            `json:"sender_id,omitempty"`
	BodyPreview string            `json:"body_preview"`
	Subject     string            `json:"subject"`
	UserEmail   string            `json:"user_email"`
}

// TicketReadPayload payload.
type TicketReadPayload struct {
	ReaderID *int64 `json:"reader_id,omitempty"`
	Marked   int64  `json:"marked"`
}
