package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/events"
	"github.com/spec-kit/support-ticketing/internal/repository"
	apperrors "github.com/spec-kit/support-ticketing/pkg/util/errorutil"
)

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	tx          repository.Transactor
	tickets     repository.TicketRepository
	historyRepo repository.TicketHistoryRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	Transactor  repository.Transactor
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &AssignmentService{
		tx:          deps.Transactor,
		tickets:     deps.TicketRepo,
		historyRepo: deps.HistoryRepo,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         clock,
	}
}

// SelfAssign assigns the ticket to the acting agent.
func (s *AssignmentService) SelfAssign(ctx context.Context, actor Sender, ticketID int64) (*domain.Ticket, error) {
	if actor.ID == nil {
		return nil, apperrors.NewUnauthorized("support identity required")
	}
	return s.Assign(ctx, actor, ticketID, *actor.ID, actor.Name)
}

// Assign hands the ticket to a support agent. An OPEN ticket moves to
// IN_PROGRESS; re-assigning the same agent changes nothing.
func (s *AssignmentService) Assign(ctx context.Context, actor Sender, ticketID, supportID int64, supportName string) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("support role required")
	}
	if supportID <= 0 {
		return nil, apperrors.NewValidationError("support id required", map[string]any{"field": "support_id"})
	}
	supportName = strings.TrimSpace(supportName)

	var (
		ticket      *domain.Ticket
		oldAssignee *int64
		oldStatus   domain.TicketStatus
		changed     bool
		moved       bool
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return ticketLookupError(err)
		}
		oldAssignee = ticket.AssignedTo
		oldStatus = ticket.Status
		sameAgent := oldAssignee != nil && *oldAssignee == supportID && ticket.AssignedName == supportName
		if sameAgent && oldStatus != domain.TicketStatusOpen {
			return nil
		}

		now := s.now()
		moved = ticket.Assign(supportID, supportName, now)
		changed = true
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return err
		}
		if !sameAgent {
			if err := recordAssigneeChange(ctx, s.historyRepo, actor, ticket.ID, oldAssignee, ticket.AssignedTo, now); err != nil {
				return err
			}
		}
		if moved {
			return recordStatusChange(ctx, s.historyRepo, actor, ticket.ID, oldStatus, ticket.Status, true, now)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !changed {
		return ticket, nil
	}

	s.logger.Info("ticket assigned",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("support_id", supportID))
	publish(ctx, s.dispatcher, s.logger, s.now, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload: events.TicketAssignedPayload{
			AssignedTo:   ticket.AssignedTo,
			AssignedName: ticket.AssignedName,
		},
	})
	if moved {
		publish(ctx, s.dispatcher, s.logger, s.now, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    actorOf(actor),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: ticket.Status,
				Automatic: true,
			},
		})
	}
	return ticket, nil
}
