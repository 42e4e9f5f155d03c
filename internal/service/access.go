package service

import (
	"context"
	"strings"

	"github.com/spec-kit/support-ticketing/internal/domain"
	apperrors "github.com/spec-kit/support-ticketing/pkg/util/errorutil"
)

// Caller carries the identity a non-privileged request presents. A zero
// Caller stands for an internal caller already authorized upstream.
type Caller struct {
	UserID *int64
	Email  string
}

// Anonymous reports whether the caller supplied neither id nor email.
func (c Caller) Anonymous() bool {
	return c.UserID == nil && strings.TrimSpace(c.Email) == ""
}

// Owns reports whether the caller matches the ticket owner by id or by
// case-insensitive email.
func (c Caller) Owns(ticket *domain.Ticket) bool {
	if c.UserID != nil && ticket.UserID != nil && *c.UserID == *ticket.UserID {
		return true
	}
	email := strings.TrimSpace(c.Email)
	return email != "" && strings.EqualFold(email, strings.TrimSpace(ticket.UserEmail))
}

// GetForCaller returns a ticket with its thread if the caller may see it.
// Denial is reported exactly like a missing ticket.
func (s *TicketService) GetForCaller(ctx context.Context, ticketID int64, caller Caller) (*TicketView, error) {
	if caller.Anonymous() {
		return s.GetTicket(ctx, ticketID, nil)
	}
	ticket, err := s.AuthorizeCaller(ctx, ticketID, caller)
	if err != nil {
		return nil, err
	}
	return s.viewWithThread(ctx, ticket, caller.UserID, false)
}

// AuthorizeCaller loads the ticket and checks ownership for a non-anonymous caller.
func (s *TicketService) AuthorizeCaller(ctx context.Context, ticketID int64, caller Caller) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if caller.Anonymous() {
		return ticket, nil
	}
	if !caller.Owns(ticket) {
		return nil, apperrors.NewNotFoundOrForbidden("ticket")
	}
	return ticket, nil
}
