package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-ticketing/internal/domain"
)

// TicketHistoryRepository appends and reads audit entries. Entries are never
// updated; they go away only with their ticket.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

const historyColumns = `id, ticket_id, changed_by_role, changed_by_id, change_type, old_value, new_value, created_at`

func (r *ticketHistoryRepository) Create(ctx context.Context, entry *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_role, changed_by_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	row := conn(ctx, r.pool).QueryRow(ctx, query,
		entry.TicketID, entry.ChangedByRole, entry.ChangedByID, entry.ChangeType,
		entry.OldValue, entry.NewValue, entry.CreatedAt)
	return row.Scan(&entry.ID)
}

// ListByTicket returns entries oldest first; id breaks ties between entries
// written in the same transaction.
func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	entries, err := pgx.CollectRows(rows, scanHistory)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.TicketHistory{}
	}
	return entries, nil
}

func scanHistory(row pgx.CollectableRow) (domain.TicketHistory, error) {
	var h domain.TicketHistory
	err := row.Scan(&h.ID, &h.TicketID, &h.ChangedByRole, &h.ChangedByID, &h.ChangeType,
		&h.OldValue, &h.NewValue, &h.CreatedAt)
	return h, err
}
