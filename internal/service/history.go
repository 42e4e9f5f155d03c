package service

import (
	"context"
	"time"

	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/repository"
)

func recordStatusChange(ctx context.Context, repo repository.TicketHistoryRepository, actor Sender, ticketID int64, oldStatus, newStatus domain.TicketStatus, automatic bool, at time.Time) error {
	return recordChange(ctx, repo, actor, domain.StatusChange(ticketID, oldStatus, newStatus, automatic, at))
}

func recordPriorityChange(ctx context.Context, repo repository.TicketHistoryRepository, actor Sender, ticketID int64, oldPriority, newPriority domain.TicketPriority, at time.Time) error {
	return recordChange(ctx, repo, actor, domain.PriorityChange(ticketID, oldPriority, newPriority, at))
}

func recordAssigneeChange(ctx context.Context, repo repository.TicketHistoryRepository, actor Sender, ticketID int64, oldAssignee, newAssignee *int64, at time.Time) error {
	return recordChange(ctx, repo, actor, domain.AssigneeChange(ticketID, oldAssignee, newAssignee, at))
}

func recordChange(ctx context.Context, repo repository.TicketHistoryRepository, actor Sender, entry *domain.TicketHistory) error {
	if repo == nil {
		return nil
	}
	return repo.Create(ctx, entry.By(actor.Role, actor.ID))
}
