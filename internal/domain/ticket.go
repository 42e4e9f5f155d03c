package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// ParseTicketStatus accepts the canonical value in any letter case.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	s := TicketStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown ticket status %q", raw)
	}
	return s, nil
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities for the pending queue; higher is more urgent.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityUrgent:
		return 4
	case TicketPriorityHigh:
		return 3
	case TicketPriorityMedium:
		return 2
	case TicketPriorityLow:
		return 1
	}
	return 0
}

// ParseTicketPriority accepts the canonical value in any letter case.
func ParseTicketPriority(raw string) (TicketPriority, error) {
	p := TicketPriority(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown ticket priority %q", raw)
	}
	return p, nil
}

// TicketCategory classifies what the ticket is about.
type TicketCategory string

const (
	CategoryInquiry          TicketCategory = "Inquiry"
	CategoryComplaint        TicketCategory = "Complaint"
	CategoryReturn           TicketCategory = "Return"
	CategoryTechnicalIssue   TicketCategory = "Technical Issue"
	CategoryBillingReceipt   TicketCategory = "Billing/Receipt"
	CategoryPasswordRecovery TicketCategory = "Password Recovery"
	CategoryOther            TicketCategory = "Other"
)

var ticketCategories = []TicketCategory{
	CategoryInquiry,
	CategoryComplaint,
	CategoryReturn,
	CategoryTechnicalIssue,
	CategoryBillingReceipt,
	CategoryPasswordRecovery,
	CategoryOther,
}

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	for _, known := range ticketCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseTicketCategory matches case-insensitively against the known categories.
func ParseTicketCategory(raw string) (TicketCategory, error) {
	trimmed := strings.TrimSpace(raw)
	for _, known := range ticketCategories {
		if strings.EqualFold(trimmed, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown ticket category %q", raw)
}

// ReceiptSubject is the subject every Billing/Receipt ticket carries.
func ReceiptSubject(orderID int64) string {
	return fmt.Sprintf("Receipt for order #%d", orderID)
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           int64
	UserID       *int64
	UserEmail    string
	UserName     string
	Subject      string
	Category     TicketCategory
	Priority     TicketPriority
	Status       TicketStatus
	AssignedTo   *int64
	AssignedName string
	OrderID      *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}

// IsGuest reports whether the ticket has no registered owner.
func (t *Ticket) IsGuest() bool {
	return t.UserID == nil
}

// Touch refreshes the modification timestamp.
func (t *Ticket) Touch(now time.Time) {
	t.UpdatedAt = now
}
