package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-ticketing/internal/api/dto"
	"github.com/spec-kit/support-ticketing/internal/auth"
	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/repository"
	"github.com/spec-kit/support-ticketing/internal/service"
	apperrors "github.com/spec-kit/support-ticketing/pkg/util/errorutil"
)

// SupportTicketsHandler serves the support desk. Routes are mounted behind
// auth.RequireStaff.
type SupportTicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
}

// NewSupportTicketsHandler constructs handler.
func NewSupportTicketsHandler(ticketService *service.TicketService, assignmentService *service.AssignmentService) *SupportTicketsHandler {
	return &SupportTicketsHandler{tickets: ticketService, assignments: assignmentService}
}

// ListTickets GET /support/tickets.
func (h *SupportTicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseSupportTicketFilter(c)
	if err != nil {
		return err
	}
	views, err := h.tickets.ListWithFilter(c.UserContext(), filter, principal.ID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(views)})
}

// ListPending GET /support/tickets/pending.
func (h *SupportTicketsHandler) ListPending(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	views, err := h.tickets.ListPending(c.UserContext(), principal.ID(), parsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(views)})
}

// UnreadCount GET /support/unread-count.
func (h *SupportTicketsHandler) UnreadCount(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	count, err := h.tickets.CountUnreadForSupport(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UnreadCountResponse{UnreadCount: count}})
}

// CreateReceipt POST /support/tickets/receipts.
func (h *SupportTicketsHandler) CreateReceipt(c *fiber.Ctx) error {
	var req dto.ReceiptTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.tickets.CreateReceiptTicket(c.UserContext(), service.ReceiptTicketInput{
		UserID:      req.UserID,
		UserEmail:   req.UserEmail,
		UserName:    req.UserName,
		OrderID:     req.OrderID,
		Body:        req.Message,
		Attachments: req.Attachments,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(view)})
}

// GetTicket GET /support/tickets/:id.
func (h *SupportTicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	view, err := h.tickets.GetTicket(c.UserContext(), id, principal.ID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(view)})
}

// ListHistory GET /support/tickets/:id/history.
func (h *SupportTicketsHandler) ListHistory(c *fiber.Ctx) error {
	_, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.ListHistory(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// AddMessage POST /support/tickets/:id/messages.
func (h *SupportTicketsHandler) AddMessage(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	msg, err := h.tickets.SendMessage(c.UserContext(), id, senderOf(principal), req.Body, req.Attachments)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketMessageResponse(msg)})
}

// UpdateStatus PATCH /support/tickets/:id/status.
func (h *SupportTicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	status, err := domain.ParseTicketStatus(req.Status)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"field": "status"})
	}
	ticket, err := h.tickets.UpdateStatus(c.UserContext(), senderOf(principal), id, status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": plainSummary(ticket)})
}

// UpdatePriority PATCH /support/tickets/:id/priority.
func (h *SupportTicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	var req dto.UpdatePriorityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	priority, err := domain.ParseTicketPriority(req.Priority)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"field": "priority"})
	}
	ticket, err := h.tickets.UpdatePriority(c.UserContext(), senderOf(principal), id, priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": plainSummary(ticket)})
}

// Assign POST /support/tickets/:id/assign. Without support_id the caller
// takes the ticket.
func (h *SupportTicketsHandler) Assign(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	actor := senderOf(principal)
	var ticket *domain.Ticket
	if req.SupportID == nil {
		ticket, err = h.assignments.SelfAssign(c.UserContext(), actor, id)
	} else {
		ticket, err = h.assignments.Assign(c.UserContext(), actor, id, *req.SupportID, req.SupportName)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": plainSummary(ticket)})
}

// Close POST /support/tickets/:id/close.
func (h *SupportTicketsHandler) Close(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Close(c.UserContext(), senderOf(principal), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": plainSummary(ticket)})
}

// Reopen POST /support/tickets/:id/reopen.
func (h *SupportTicketsHandler) Reopen(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Reopen(c.UserContext(), senderOf(principal), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": plainSummary(ticket)})
}

// MarkRead POST /support/tickets/:id/read.
func (h *SupportTicketsHandler) MarkRead(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	marked, err := h.tickets.MarkRead(c.UserContext(), id, principal.ID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkReadResponse{Marked: marked}})
}

// Delete DELETE /support/tickets/:id.
func (h *SupportTicketsHandler) Delete(c *fiber.Ctx) error {
	principal, id, err := h.staffAndTicket(c)
	if err != nil {
		return err
	}
	if err := h.tickets.Delete(c.UserContext(), senderOf(principal), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *SupportTicketsHandler) staffAndTicket(c *fiber.Ctx) (*auth.Principal, int64, error) {
	principal, err := staffPrincipal(c)
	if err != nil {
		return nil, 0, err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return nil, 0, err
	}
	return principal, id, nil
}

func staffPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || !principal.Role.IsStaff() {
		return nil, fiber.NewError(http.StatusUnauthorized, "staff required")
	}
	return principal, nil
}

func senderOf(principal *auth.Principal) service.Sender {
	return service.Sender{
		ID:    principal.ID(),
		Email: principal.Email,
		Name:  principal.Name,
		Role:  principal.Role,
	}
}

func parseSupportTicketFilter(c *fiber.Ctx) (repository.TicketFilter, error) {
	page := parsePage(c)
	filter := repository.TicketFilter{Limit: page.Limit, Offset: page.Offset}

	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseTicketStatus(raw)
		if err != nil {
			return filter, apperrors.NewValidationError(err.Error(), map[string]any{"field": "status"})
		}
		filter.Status = &status
	}
	if raw := c.Query("category"); raw != "" {
		category, err := domain.ParseTicketCategory(raw)
		if err != nil {
			return filter, apperrors.NewValidationError(err.Error(), map[string]any{"field": "category"})
		}
		filter.Category = &category
	}
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		filter.Email = &email
	}
	filter.Unassigned = c.QueryBool("unassigned", false)

	var err error
	if filter.AssigneeID, err = queryInt64(c, "assignee_id"); err != nil {
		return filter, err
	}
	if filter.OrderID, err = queryInt64(c, "order_id"); err != nil {
		return filter, err
	}
	if filter.OwnerID, err = queryInt64(c, "user_id"); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryInt64(c *fiber.Ctx, key string) (*int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid "+key, map[string]any{"field": key})
	}
	return &v, nil
}
