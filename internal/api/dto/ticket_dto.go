package dto

import (
	"time"

	"github.com/spec-kit/support-ticketing/internal/domain"
)

// CreateTicketRequest payload. Guests identify themselves with email and name.
type CreateTicketRequest struct {
	Email       string   `json:"email" validate:"omitempty,email,max=255"`
	Name        string   `json:"name" validate:"max=255"`
	Subject     string   `json:"subject" validate:"max=255"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	OrderID     *int64   `json:"order_id" validate:"omitempty,gt=0"`
	Message     string   `json:"message" validate:"required,max=10000"`
	Attachments []string `json:"attachments" validate:"max=10,dive,max=2048"`
}

// PasswordRecoveryRequest payload.
type PasswordRecoveryRequest struct {
	Email   string `json:"email" validate:"required,email,max=255"`
	Name    string `json:"name" validate:"max=255"`
	Message string `json:"message" validate:"max=10000"`
}

// ReceiptTicketRequest payload sent by the order flow.
type ReceiptTicketRequest struct {
	UserID      *int64   `json:"user_id" validate:"omitempty,gt=0"`
	UserEmail   string   `json:"user_email" validate:"required,email,max=255"`
	UserName    string   `json:"user_name" validate:"max=255"`
	OrderID     *int64   `json:"order_id" validate:"required,gt=0"`
	Message     string   `json:"message" validate:"max=10000"`
	Attachments []string `json:"attachments" validate:"max=10,dive,max=2048"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Email       string   `json:"email" validate:"omitempty,email,max=255"`
	Name        string   `json:"name" validate:"max=255"`
	Body        string   `json:"body" validate:"required,max=10000"`
	Attachments []string `json:"attachments" validate:"max=10,dive,max=2048"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority string `json:"priority" validate:"required"`
}

// AssignRequest payload. An empty body assigns the caller.
type AssignRequest struct {
	SupportID   *int64 `json:"support_id" validate:"omitempty,gt=0"`
	SupportName string `json:"support_name" validate:"max=255"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           int64                 `json:"id"`
	UserID       *int64                `json:"user_id"`
	UserEmail    string                `json:"user_email"`
	UserName     string                `json:"user_name"`
	Subject      string                `json:"subject"`
	Category     domain.TicketCategory `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	AssignedTo   *int64                `json:"assigned_to"`
	AssignedName string                `json:"assigned_name,omitempty"`
	OrderID      *int64                `json:"order_id"`
	UnreadCount  int64                 `json:"unread_count"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	ClosedAt     *time.Time            `json:"closed_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Messages []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse represents thread message.
type TicketMessageResponse struct {
	ID          int64             `json:"id"`
	TicketID    int64             `json:"ticket_id"`
	SenderID    *int64            `json:"sender_id"`
	SenderEmail string            `json:"sender_email"`
	SenderName  string            `json:"sender_name"`
	SenderRole  domain.SenderRole `json:"sender_role"`
	Body        string            `json:"body"`
	Attachments []string          `json:"attachments"`
	IsInternal  bool              `json:"is_internal,omitempty"`
	IsRead      bool              `json:"is_read"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TicketHistoryResponse represents an audit entry.
type TicketHistoryResponse struct {
	ID            int64                   `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByRole domain.SenderRole       `json:"changed_by_role"`
	ChangedByID   *int64                  `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

// UnreadCountResponse response.
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// MarkReadResponse response.
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}
