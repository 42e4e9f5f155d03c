package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-ticketing/internal/api/dto"
	"github.com/spec-kit/support-ticketing/internal/auth"
	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/service"
	apperrors "github.com/spec-kit/support-ticketing/pkg/util/errorutil"
)

// TicketsHandler manages customer and guest ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	input := service.CreateTicketInput{
		UserEmail:   req.Email,
		UserName:    req.Name,
		Subject:     req.Subject,
		OrderID:     req.OrderID,
		Body:        req.Message,
		Attachments: req.Attachments,
	}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		input.UserID = principal.ID()
		input.UserEmail = principal.Email
		input.UserName = principal.Name
	}
	if req.Category != "" {
		category, err := domain.ParseTicketCategory(req.Category)
		if err != nil {
			return apperrors.NewValidationError(err.Error(), map[string]any{"field": "category"})
		}
		input.Category = category
	}
	if req.Priority != "" {
		priority, err := domain.ParseTicketPriority(req.Priority)
		if err != nil {
			return apperrors.NewValidationError(err.Error(), map[string]any{"field": "priority"})
		}
		input.Priority = priority
	}

	view, err := h.service.CreateTicket(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(view)})
}

// CreatePasswordRecovery POST /tickets/password-recovery.
func (h *TicketsHandler) CreatePasswordRecovery(c *fiber.Ctx) error {
	var req dto.PasswordRecoveryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.service.CreatePasswordRecoveryTicket(c.UserContext(), service.PasswordRecoveryInput{
		Email: req.Email,
		Name:  req.Name,
		Body:  req.Message,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(view)})
}

// ListTickets GET /tickets. Registered users see their own tickets; guests
// list by the email query parameter.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	page := parsePage(c)
	var (
		views []service.TicketView
		err   error
	)
	if principal, ok := auth.PrincipalFromContext(c); ok {
		views, err = h.service.ListByOwner(c.UserContext(), principal.UserID, page)
	} else {
		email := strings.TrimSpace(c.Query("email"))
		if email == "" {
			return apperrors.NewUnauthorized("token or email required")
		}
		views, err = h.service.ListByEmail(c.UserContext(), email, nil, page)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(views)})
}

// UnreadCount GET /tickets/unread-count.
func (h *TicketsHandler) UnreadCount(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	count, err := h.service.CountUnreadForUser(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UnreadCountResponse{UnreadCount: count}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	caller, err := callerFrom(c, c.Query("email"))
	if err != nil {
		return err
	}
	view, err := h.service.GetForCaller(c.UserContext(), id, caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(view)})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	caller, err := callerFrom(c, req.Email)
	if err != nil {
		return err
	}
	ticket, err := h.service.AuthorizeCaller(c.UserContext(), id, caller)
	if err != nil {
		return err
	}

	sender := service.Sender{ID: caller.UserID, Email: caller.Email, Name: req.Name, Role: domain.RoleUser}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		sender.Name = principal.Name
	}
	if sender.Name == "" {
		sender.Name = ticket.UserName
	}
	msg, err := h.service.SendMessage(c.UserContext(), ticket.ID, sender, req.Body, req.Attachments)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketMessageResponse(msg)})
}

// MarkRead POST /tickets/:id/read.
func (h *TicketsHandler) MarkRead(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	caller, err := callerFrom(c, c.Query("email"))
	if err != nil {
		return err
	}
	if _, err := h.service.AuthorizeCaller(c.UserContext(), id, caller); err != nil {
		return err
	}
	marked, err := h.service.MarkRead(c.UserContext(), id, caller.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkReadResponse{Marked: marked}})
}

// callerFrom builds the ownership identity of a customer request. Guests
// must present an email.
func callerFrom(c *fiber.Ctx, guestEmail string) (service.Caller, error) {
	if principal, ok := auth.PrincipalFromContext(c); ok {
		return service.Caller{UserID: principal.ID(), Email: principal.Email}, nil
	}
	email := strings.TrimSpace(guestEmail)
	if email == "" {
		return service.Caller{}, apperrors.NewUnauthorized("token or email required")
	}
	return service.Caller{Email: email}, nil
}

func ticketIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = math.MaxInt32
)

func parsePage(c *fiber.Ctx) service.Page {
	page := min(parseInt(c.Query("page"), 1), maxPage)
	pageSize := min(parseInt(c.Query("page_size"), defaultPageSize), maxPageSize)
	return service.Page{Limit: pageSize, Offset: (page - 1) * pageSize}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(view *service.TicketView) dto.TicketSummary {
	ticket := view.Ticket
	return dto.TicketSummary{
		ID:           ticket.ID,
		UserID:       ticket.UserID,
		UserEmail:    ticket.UserEmail,
		UserName:     ticket.UserName,
		Subject:      ticket.Subject,
		Category:     ticket.Category,
		Priority:     ticket.Priority,
		Status:       ticket.Status,
		AssignedTo:   ticket.AssignedTo,
		AssignedName: ticket.AssignedName,
		OrderID:      ticket.OrderID,
		UnreadCount:  view.UnreadCount,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
		ClosedAt:     ticket.ClosedAt,
	}
}

func ticketSummaries(views []service.TicketView) []dto.TicketSummary {
	items := make([]dto.TicketSummary, 0, len(views))
	for i := range views {
		items = append(items, ticketSummary(&views[i]))
	}
	return items
}

func plainSummary(ticket *domain.Ticket) dto.TicketSummary {
	return ticketSummary(&service.TicketView{Ticket: *ticket})
}

func ticketDetail(view *service.TicketView) dto.TicketDetailResponse {
	msgs := make([]dto.TicketMessageResponse, 0, len(view.Messages))
	for i := range view.Messages {
		msgs = append(msgs, ticketMessageResponse(&view.Messages[i]))
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(view),
		Messages:      msgs,
	}
}

func ticketMessageResponse(msg *domain.TicketMessage) dto.TicketMessageResponse {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return dto.TicketMessageResponse{
		ID:          msg.ID,
		TicketID:    msg.TicketID,
		SenderID:    msg.SenderID,
		SenderEmail: msg.SenderEmail,
		SenderName:  msg.SenderName,
		SenderRole:  msg.SenderRole,
		Body:        msg.Body,
		Attachments: attachments,
		IsInternal:  msg.IsInternal,
		IsRead:      msg.IsRead,
		CreatedAt:   msg.CreatedAt,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByRole: entry.ChangedByRole,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}
