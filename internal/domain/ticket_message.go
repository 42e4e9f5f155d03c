package domain

import (
	"fmt"
	"strings"
	"time"
)

// SenderRole indicates who authored a message.
type SenderRole string

const (
	RoleUser    SenderRole = "USER"
	RoleSupport SenderRole = "SUPPORT"
	RoleAdmin   SenderRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r SenderRole) Valid() bool {
	switch r {
	case RoleUser, RoleSupport, RoleAdmin:
		return true
	}
	return false
}

// CanProgressTicket reports whether a reply from this role starts work on an open ticket.
func (r SenderRole) CanProgressTicket() bool {
	return r == RoleSupport || r == RoleAdmin
}

// IsStaff reports whether the role belongs to the support organisation.
func (r SenderRole) IsStaff() bool {
	return r == RoleSupport || r == RoleAdmin
}

// ParseSenderRole accepts the canonical value in any letter case.
func ParseSenderRole(raw string) (SenderRole, error) {
	r := SenderRole(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return r, nil
}

// TicketMessage captures one entry in a ticket thread. It refers to its
// ticket by id only.
type TicketMessage struct {
	ID          int64
	TicketID    int64
	SenderID    *int64
	SenderEmail string
	SenderName  string
	SenderRole  SenderRole
	Body        string
	Attachments []string
	IsInternal  bool
	IsRead      bool
	CreatedAt   time.Time
}

// AuthoredBy reports whether the viewer wrote the message. A nil viewer is a
// guest, and guest messages carry no sender id.
func (m *TicketMessage) AuthoredBy(viewerID *int64) bool {
	if m.SenderID == nil || viewerID == nil {
		return m.SenderID == nil && viewerID == nil
	}
	return *m.SenderID == *viewerID
}
