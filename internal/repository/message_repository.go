package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-ticketing/internal/domain"
)

// TicketMessageRepository manages ticket thread messages and their read state.
//
// A message counts as authored by a viewer when sender_id IS NOT DISTINCT
// FROM the viewer id, so a nil viewer matches guest messages.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketMessage, error)
	CountUnreadInTicket(ctx context.Context, ticketID int64, viewerID *int64) (int64, error)
	CountUnreadByTickets(ctx context.Context, ticketIDs []int64, viewerID *int64) (map[int64]int64, error)
	CountUnreadForOwner(ctx context.Context, userID int64) (int64, error)
	CountUnreadForAssignee(ctx context.Context, supportID int64) (int64, error)
	MarkAllReadExceptSender(ctx context.Context, ticketID int64, readerID *int64) (int64, error)
	DeleteByTicket(ctx context.Context, ticketID int64) error
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, sender_id, sender_email, sender_name, sender_role,
                                     body, attachments, is_internal, is_read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id`
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return conn(ctx, r.pool).QueryRow(ctx, query,
		msg.TicketID,
		msg.SenderID,
		msg.SenderEmail,
		msg.SenderName,
		msg.SenderRole,
		msg.Body,
		attachments,
		msg.IsInternal,
		msg.IsRead,
		msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, sender_id, sender_email, sender_name, sender_role,
               body, attachments, is_internal, is_read, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketMessage{}
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.SenderEmail,
			&msg.SenderName,
			&msg.SenderRole,
			&msg.Body,
			&msg.Attachments,
			&msg.IsInternal,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) CountUnreadInTicket(ctx context.Context, ticketID int64, viewerID *int64) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM ticket_messages
        WHERE ticket_id=$1 AND is_read=FALSE AND sender_id IS DISTINCT FROM $2`
	var count int64
	err := conn(ctx, r.pool).QueryRow(ctx, query, ticketID, viewerID).Scan(&count)
	return count, err
}

func (r *ticketMessageRepository) CountUnreadByTickets(ctx context.Context, ticketIDs []int64, viewerID *int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return counts, nil
	}
	const query = `
        SELECT ticket_id, COUNT(*) FROM ticket_messages
        WHERE ticket_id = ANY($1) AND is_read=FALSE AND sender_id IS DISTINCT FROM $2
        GROUP BY ticket_id`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ticketIDs, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ticketID, count int64
		if err := rows.Scan(&ticketID, &count); err != nil {
			return nil, err
		}
		counts[ticketID] = count
	}
	return counts, rows.Err()
}

func (r *ticketMessageRepository) CountUnreadForOwner(ctx context.Context, userID int64) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM ticket_messages m
        JOIN tickets t ON t.id = m.ticket_id
        WHERE t.user_id=$1 AND m.is_read=FALSE AND m.sender_id IS DISTINCT FROM $1`
	var count int64
	err := conn(ctx, r.pool).QueryRow(ctx, query, userID).Scan(&count)
	return count, err
}

func (r *ticketMessageRepository) CountUnreadForAssignee(ctx context.Context, supportID int64) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM ticket_messages m
        JOIN tickets t ON t.id = m.ticket_id
        WHERE t.assigned_to=$1 AND m.is_read=FALSE AND m.sender_id IS DISTINCT FROM $1`
	var count int64
	err := conn(ctx, r.pool).QueryRow(ctx, query, supportID).Scan(&count)
	return count, err
}

func (r *ticketMessageRepository) MarkAllReadExceptSender(ctx context.Context, ticketID int64, readerID *int64) (int64, error) {
	const query = `
        UPDATE ticket_messages SET is_read=TRUE
        WHERE ticket_id=$1 AND is_read=FALSE AND sender_id IS DISTINCT FROM $2`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, ticketID, readerID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ticketMessageRepository) DeleteByTicket(ctx context.Context, ticketID int64) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM ticket_messages WHERE ticket_id=$1`, ticketID)
	return err
}
