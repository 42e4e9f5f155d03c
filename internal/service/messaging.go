package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/events"
	"github.com/spec-kit/support-ticketing/internal/repository"
	apperrors "github.com/spec-kit/support-ticketing/pkg/util/errorutil"
)

const previewLength = 140

// SendMessage appends a message to a ticket thread. A support or admin reply
// to an OPEN ticket moves it to IN_PROGRESS in the same transaction.
func (s *TicketService) SendMessage(ctx context.Context, ticketID int64, sender Sender, body string, attachments []string) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body required", map[string]any{"field": "body"})
	}
	if !sender.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown sender role", map[string]any{"role": sender.Role})
	}

	var (
		msg          *domain.TicketMessage
		ticket       *domain.Ticket
		transitioned bool
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewTicketClosed(ticket.ID)
		}

		now := s.now()
		msg = newMessage(sender, body, attachments, now)
		msg.TicketID = ticket.ID
		if err := s.messages.Create(ctx, msg); err != nil {
			return err
		}

		ticket.Touch(now)
		if sender.Role.CanProgressTicket() && ticket.Status == domain.TicketStatusOpen {
			if transitioned, err = ticket.TransitionTo(domain.TicketStatusInProgress, now); err != nil {
				return err
			}
		}
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return err
		}
		if transitioned {
			return recordStatusChange(ctx, s.history, sender, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusInProgress, true, now)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Debug("ticket message added",
		zap.Int64("ticket_id", ticketID),
		zap.Int64("message_id", msg.ID),
		zap.String("sender_role", string(sender.Role)))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticketID,
		Actor:    actorOf(sender),
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			SenderRole:  msg.SenderRole,
			SenderID:    msg.SenderID,
			BodyPreview: stringPreview(msg.Body, previewLength),
			Subject:     ticket.Subject,
			UserEmail:   ticket.UserEmail,
		},
	})
	if transitioned {
		s.publishStatusChanged(ctx, sender, ticketID, domain.TicketStatusOpen, domain.TicketStatusInProgress, true)
	}
	return msg, nil
}

// MarkRead marks every unread message in the ticket not authored by the
// reader and returns how many were marked. Repeated calls mark nothing.
func (s *TicketService) MarkRead(ctx context.Context, ticketID int64, readerID *int64) (int64, error) {
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return 0, err
	}
	marked, err := s.messages.MarkAllReadExceptSender(ctx, ticketID, readerID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if marked > 0 {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketRead,
			TicketID: ticketID,
			Actor:    events.Actor{UserID: readerID},
			Payload:  events.TicketReadPayload{ReaderID: readerID, Marked: marked},
		})
	}
	return marked, nil
}

// CountUnreadForUser counts unread messages not written by the user across
// every ticket the user owns.
func (s *TicketService) CountUnreadForUser(ctx context.Context, userID int64) (int64, error) {
	count, err := s.messages.CountUnreadForOwner(ctx, userID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

// CountUnreadForSupport counts unread messages not written by the agent
// across every ticket assigned to the agent.
func (s *TicketService) CountUnreadForSupport(ctx context.Context, supportID int64) (int64, error) {
	count, err := s.messages.CountUnreadForAssignee(ctx, supportID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

// ListWithFilter lists tickets matching the filter, annotated with unread
// counts from the viewer's perspective.
func (s *TicketService) ListWithFilter(ctx context.Context, filter repository.TicketFilter, viewerID *int64) ([]TicketView, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.annotate(ctx, tickets, viewerID)
}

func (s *TicketService) ListByOwner(ctx context.Context, userID int64, page Page) ([]TicketView, error) {
	return s.ListWithFilter(ctx, pageFilter(repository.TicketFilter{OwnerID: &userID}, page), &userID)
}

// ListByEmail lists tickets by owner email; the viewer is a guest unless a
// viewer id is given.
func (s *TicketService) ListByEmail(ctx context.Context, email string, viewerID *int64, page Page) ([]TicketView, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperrors.NewValidationError("email required", map[string]any{"field": "email"})
	}
	return s.ListWithFilter(ctx, pageFilter(repository.TicketFilter{Email: &email}, page), viewerID)
}

func (s *TicketService) ListByStatus(ctx context.Context, status domain.TicketStatus, viewerID *int64, page Page) ([]TicketView, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	return s.ListWithFilter(ctx, pageFilter(repository.TicketFilter{Status: &status}, page), viewerID)
}

func (s *TicketService) ListByCategory(ctx context.Context, category domain.TicketCategory, viewerID *int64, page Page) ([]TicketView, error) {
	if !category.Valid() {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": category})
	}
	return s.ListWithFilter(ctx, pageFilter(repository.TicketFilter{Category: &category}, page), viewerID)
}

// ListByAssignee lists an agent's tickets with unread counts for that agent.
func (s *TicketService) ListByAssignee(ctx context.Context, supportID int64, page Page) ([]TicketView, error) {
	return s.ListWithFilter(ctx, pageFilter(repository.TicketFilter{AssigneeID: &supportID}, page), &supportID)
}

func (s *TicketService) ListUnassigned(ctx context.Context, viewerID *int64, page Page) ([]TicketView, error) {
	return s.ListWithFilter(ctx, pageFilter(repository.TicketFilter{Unassigned: true}, page), viewerID)
}

func (s *TicketService) ListByOrder(ctx context.Context, orderID int64, viewerID *int64, page Page) ([]TicketView, error) {
	return s.ListWithFilter(ctx, pageFilter(repository.TicketFilter{OrderID: &orderID}, page), viewerID)
}

// ListPending returns the support work queue: OPEN and IN_PROGRESS tickets,
// most urgent first and oldest first within a priority.
func (s *TicketService) ListPending(ctx context.Context, viewerID *int64, page Page) ([]TicketView, error) {
	tickets, err := s.tickets.ListPending(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.annotate(ctx, tickets, viewerID)
}

func (s *TicketService) annotate(ctx context.Context, tickets []domain.Ticket, viewerID *int64) ([]TicketView, error) {
	views := make([]TicketView, 0, len(tickets))
	if len(tickets) == 0 {
		return views, nil
	}
	ids := make([]int64, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	counts, err := s.messages.CountUnreadByTickets(ctx, ids, viewerID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	for _, t := range tickets {
		views = append(views, TicketView{Ticket: t, UnreadCount: counts[t.ID]})
	}
	return views, nil
}

func pageFilter(filter repository.TicketFilter, page Page) repository.TicketFilter {
	filter.Limit = page.Limit
	filter.Offset = page.Offset
	return filter
}
