package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/events"
	"github.com/spec-kit/support-ticketing/internal/repository"
	apperrors "github.com/spec-kit/support-ticketing/pkg/util/errorutil"
)

const passwordRecoverySubject = "Password recovery request"

// TicketService coordinates ticket workflows: creation, threading, unread
// tracking and status management.
type TicketService struct {
	tx         repository.Transactor
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	system     SystemSender
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	Transactor  repository.Transactor
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	System      SystemSender
	Clock       func() time.Time
}

// SystemSender is the identity system-generated messages are attributed to.
type SystemSender struct {
	Name  string
	Email string
}

// Sender identifies the author of a message or the actor of a change, as
// supplied by the identity service.
type Sender struct {
	ID    *int64
	Email string
	Name  string
	Role  domain.SenderRole
}

// CreateTicketInput describes ticket creation payload. Zero category and
// priority fall back to Inquiry and Medium.
type CreateTicketInput struct {
	UserID      *int64
	UserEmail   string
	UserName    string
	Subject     string
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
	OrderID     *int64
	Body        string
	Attachments []string
	// Sender overrides the author of the seed message; nil means the owner.
	Sender *Sender
}

// ReceiptTicketInput describes a system-generated Billing/Receipt ticket.
type ReceiptTicketInput struct {
	UserID      *int64
	UserEmail   string
	UserName    string
	OrderID     *int64
	Body        string
	Attachments []string
}

// PasswordRecoveryInput describes a guest password-recovery request.
type PasswordRecoveryInput struct {
	Email string
	Name  string
	Body  string
}

// TicketView is a ticket annotated with the viewer's unread count and,
// for detail reads, its ordered thread.
type TicketView struct {
	Ticket      domain.Ticket
	Messages    []domain.TicketMessage
	UnreadCount int64
}

// Page bounds list results.
type Page struct {
	Limit  int
	Offset int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &TicketService{
		tx:         deps.Transactor,
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		system:     deps.System,
		now:        clock,
	}
}

// CreateTicket creates a ticket together with its seed message in one
// transaction.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput) (*TicketView, error) {
	email := strings.TrimSpace(input.UserEmail)
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body required", map[string]any{"field": "body"})
	}
	if email == "" {
		return nil, apperrors.NewValidationError("user email required", map[string]any{"field": "user_email"})
	}

	category := input.Category
	if category == "" {
		category = domain.CategoryInquiry
	}
	if !category.Valid() {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": category})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	subject := strings.TrimSpace(input.Subject)
	if category == domain.CategoryBillingReceipt {
		if input.OrderID == nil {
			return nil, apperrors.NewValidationError("order_id required for Billing/Receipt tickets", map[string]any{"field": "order_id"})
		}
		subject = domain.ReceiptSubject(*input.OrderID)
	}
	if subject == "" {
		return nil, apperrors.NewValidationError("subject required", map[string]any{"field": "subject"})
	}

	sender := Sender{ID: input.UserID, Email: email, Name: input.UserName, Role: domain.RoleUser}
	if input.Sender != nil {
		sender = *input.Sender
	}
	if !sender.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown sender role", map[string]any{"role": sender.Role})
	}

	now := s.now()
	ticket := &domain.Ticket{
		UserID:    input.UserID,
		UserEmail: email,
		UserName:  strings.TrimSpace(input.UserName),
		Subject:   subject,
		Category:  category,
		Priority:  priority,
		Status:    domain.TicketStatusOpen,
		OrderID:   input.OrderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	msg := newMessage(sender, body, input.Attachments, now)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return err
		}
		msg.TicketID = ticket.ID
		if err := s.messages.Create(ctx, msg); err != nil {
			return err
		}
		ticket.Touch(now)
		return s.tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("category", string(ticket.Category)),
		zap.Bool("guest", ticket.IsGuest()))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorOf(sender),
		Payload: events.TicketCreatedPayload{
			Category:  ticket.Category,
			Priority:  ticket.Priority,
			Subject:   ticket.Subject,
			OrderID:   ticket.OrderID,
			UserEmail: ticket.UserEmail,
		},
	})

	// The seed message is unread and was not written by its recipient.
	return &TicketView{Ticket: *ticket, Messages: []domain.TicketMessage{*msg}, UnreadCount: 1}, nil
}

// CreateReceiptTicket opens a Billing/Receipt ticket on behalf of the order
// flow. The seed message is attributed to the system sender.
func (s *TicketService) CreateReceiptTicket(ctx context.Context, input ReceiptTicketInput) (*TicketView, error) {
	return s.CreateTicket(ctx, CreateTicketInput{
		UserID:      input.UserID,
		UserEmail:   input.UserEmail,
		UserName:    input.UserName,
		Category:    domain.CategoryBillingReceipt,
		OrderID:     input.OrderID,
		Body:        input.Body,
		Attachments: input.Attachments,
		Sender: &Sender{
			Email: s.system.Email,
			Name:  s.system.Name,
			Role:  domain.RoleSupport,
		},
	})
}

// CreatePasswordRecoveryTicket opens a guest ticket asking support to restore access.
func (s *TicketService) CreatePasswordRecoveryTicket(ctx context.Context, input PasswordRecoveryInput) (*TicketView, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		body = "Password recovery requested for " + strings.TrimSpace(input.Email)
	}
	return s.CreateTicket(ctx, CreateTicketInput{
		UserEmail: input.Email,
		UserName:  input.Name,
		Subject:   passwordRecoverySubject,
		Category:  domain.CategoryPasswordRecovery,
		Body:      body,
	})
}

// GetTicket returns the full ticket and thread without ownership checks.
func (s *TicketService) GetTicket(ctx context.Context, ticketID int64, viewerID *int64) (*TicketView, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.viewWithThread(ctx, ticket, viewerID, true)
}

// UpdateStatus moves a ticket along the lifecycle on behalf of support staff.
func (s *TicketService) UpdateStatus(ctx context.Context, actor Sender, ticketID int64, target domain.TicketStatus) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("support role required")
	}
	if !target.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": target})
	}

	var (
		ticket    *domain.Ticket
		oldStatus domain.TicketStatus
		changed   bool
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		oldStatus = ticket.Status
		now := s.now()
		changed, err = ticket.TransitionTo(target, now)
		if errors.Is(err, domain.ErrInvalidTransition) {
			return apperrors.NewInvalidTransition(string(oldStatus), string(target))
		}
		if err != nil || !changed {
			return err
		}
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return recordStatusChange(ctx, s.history, actor, ticket.ID, oldStatus, target, false, now)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if changed {
		s.publishStatusChanged(ctx, actor, ticket.ID, oldStatus, ticket.Status, false)
	}
	return ticket, nil
}

// Close transitions the ticket to CLOSED.
func (s *TicketService) Close(ctx context.Context, actor Sender, ticketID int64) (*domain.Ticket, error) {
	return s.UpdateStatus(ctx, actor, ticketID, domain.TicketStatusClosed)
}

// Reopen brings a closed ticket back to IN_PROGRESS.
func (s *TicketService) Reopen(ctx context.Context, actor Sender, ticketID int64) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("support role required")
	}
	var ticket *domain.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		oldStatus := ticket.Status
		now := s.now()
		if err := ticket.Reopen(now); err != nil {
			return apperrors.NewInvalidTransition(string(oldStatus), string(domain.TicketStatusInProgress))
		}
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return recordStatusChange(ctx, s.history, actor, ticket.ID, oldStatus, ticket.Status, false, now)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishStatusChanged(ctx, actor, ticket.ID, domain.TicketStatusClosed, ticket.Status, false)
	return ticket, nil
}

// UpdatePriority changes ticket priority.
func (s *TicketService) UpdatePriority(ctx context.Context, actor Sender, ticketID int64, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("support role required")
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	var (
		ticket      *domain.Ticket
		oldPriority domain.TicketPriority
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		oldPriority = ticket.Priority
		if oldPriority == priority {
			return nil
		}
		now := s.now()
		ticket.Priority = priority
		ticket.Touch(now)
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return recordPriorityChange(ctx, s.history, actor, ticket.ID, oldPriority, priority, now)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if oldPriority != priority {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: ticket.ID,
			Actor:    actorOf(actor),
			Payload: events.TicketPriorityChangedPayload{
				OldPriority: oldPriority,
				NewPriority: priority,
			},
		})
	}
	return ticket, nil
}

// Delete removes a ticket and its thread.
func (s *TicketService) Delete(ctx context.Context, actor Sender, ticketID int64) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.lockTicket(ctx, ticketID); err != nil {
			return err
		}
		if err := s.messages.DeleteByTicket(ctx, ticketID); err != nil {
			return err
		}
		return s.tickets.Delete(ctx, ticketID)
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Info("ticket deleted", zap.Int64("ticket_id", ticketID))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticketID,
		Actor:    actorOf(actor),
	})
	return nil
}

// ListHistory returns the audit trail of a ticket.
func (s *TicketService) ListHistory(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, ticketLookupError(err)
	}
	return ticket, nil
}

func (s *TicketService) lockTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByIDForUpdate(ctx, ticketID)
	if err != nil {
		return nil, ticketLookupError(err)
	}
	return ticket, nil
}

func ticketLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		// No id in the details so denial and absence render the same.
		return apperrors.NewNotFound("ticket", nil)
	}
	return apperrors.MapError(err)
}

func (s *TicketService) viewWithThread(ctx context.Context, ticket *domain.Ticket, viewerID *int64, includeInternal bool) (*TicketView, error) {
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !includeInternal {
		msgs = publicMessages(msgs)
	}
	unread, err := s.messages.CountUnreadInTicket(ctx, ticket.ID, viewerID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketView{Ticket: *ticket, Messages: msgs, UnreadCount: unread}, nil
}

func publicMessages(msgs []domain.TicketMessage) []domain.TicketMessage {
	filtered := make([]domain.TicketMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.IsInternal {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered
}

func newMessage(sender Sender, body string, attachments []string, now time.Time) *domain.TicketMessage {
	return &domain.TicketMessage{
		SenderID:    sender.ID,
		SenderEmail: strings.TrimSpace(sender.Email),
		SenderName:  strings.TrimSpace(sender.Name),
		SenderRole:  sender.Role,
		Body:        body,
		Attachments: cleanAttachments(attachments),
		CreatedAt:   now,
	}
}

func cleanAttachments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ref := range in {
		if ref = strings.TrimSpace(ref); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

func (s *TicketService) publishStatusChanged(ctx context.Context, actor Sender, ticketID int64, oldStatus, newStatus domain.TicketStatus, automatic bool) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticketID,
		Actor:    actorOf(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Automatic: automatic,
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.logger, s.now, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, now func() time.Time, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func actorOf(sender Sender) events.Actor {
	return events.Actor{Role: sender.Role, UserID: sender.ID, Email: sender.Email}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
