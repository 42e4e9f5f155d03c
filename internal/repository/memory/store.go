// Package memory provides process-local implementations of the repository
// interfaces. The service falls back to it when no Postgres DSN is configured,
// and tests use it as the backing store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/repository"
)

type txContextKey struct{}

// Store keeps tickets, messages and history in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	tickets  map[int64]domain.Ticket
	messages map[int64]domain.TicketMessage
	history  map[int64]domain.TicketHistory
	nextID   struct{ ticket, message, history int64 }
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tickets:  make(map[int64]domain.Ticket),
		messages: make(map[int64]domain.TicketMessage),
		history:  make(map[int64]domain.TicketHistory),
	}
}

// Tickets returns the ticket repository view of the store.
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s} }

// Messages returns the message repository view of the store.
func (s *Store) Messages() repository.TicketMessageRepository { return &messageRepo{s} }

// History returns the history repository view of the store.
func (s *Store) History() repository.TicketHistoryRepository { return &historyRepo{s} }

// WithinTransaction serializes transactions and restores the previous state
// when fn fails.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txContextKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txContextKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// lock guards a single repository call. Calls made outside a transaction also
// wait for any open transaction, so they neither observe its uncommitted writes
// nor get undone by its rollback.
func (s *Store) lock(ctx context.Context) (unlock func()) {
	if ctx.Value(txContextKey{}) != nil {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

type snapshot struct {
	tickets  map[int64]domain.Ticket
	messages map[int64]domain.TicketMessage
	history  map[int64]domain.TicketHistory
	nextID   struct{ ticket, message, history int64 }
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		tickets:  make(map[int64]domain.Ticket, len(s.tickets)),
		messages: make(map[int64]domain.TicketMessage, len(s.messages)),
		history:  make(map[int64]domain.TicketHistory, len(s.history)),
		nextID:   s.nextID,
	}
	for k, v := range s.tickets {
		snap.tickets[k] = cloneTicket(v)
	}
	for k, v := range s.messages {
		snap.messages[k] = cloneMessage(v)
	}
	for k, v := range s.history {
		snap.history[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = snap.tickets
	s.messages = snap.messages
	s.history = snap.history
	s.nextID = snap.nextID
}

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	defer r.s.lock(ctx)()
	r.s.nextID.ticket++
	ticket.ID = r.s.nextID.ticket
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	defer r.s.lock(ctx)()
	existing, ok := r.s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	updated := cloneTicket(*ticket)
	updated.UserID = existing.UserID
	updated.UserEmail = existing.UserEmail
	updated.UserName = existing.UserName
	updated.CreatedAt = existing.CreatedAt
	r.s.tickets[ticket.ID] = updated
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	defer r.s.lock(ctx)()
	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTicket(ticket)
	return &out, nil
}

func (r *ticketRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	unlock := r.s.lock(ctx)
	matched := []domain.Ticket{}
	for _, t := range r.s.tickets {
		if matchesFilter(t, filter) {
			matched = append(matched, cloneTicket(t))
		}
	}
	unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, filter.Limit, filter.Offset), nil
}

func (r *ticketRepo) ListPending(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	unlock := r.s.lock(ctx)
	matched := []domain.Ticket{}
	for _, t := range r.s.tickets {
		for _, status := range repository.PendingStatuses {
			if t.Status == status {
				matched = append(matched, cloneTicket(t))
				break
			}
		}
	}
	unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return page(matched, limit, offset), nil
}

func (r *ticketRepo) Delete(ctx context.Context, id int64) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tickets, id)
	for hid, h := range r.s.history {
		if h.TicketID == id {
			delete(r.s.history, hid)
		}
	}
	return nil
}

func matchesFilter(t domain.Ticket, f repository.TicketFilter) bool {
	if f.OwnerID != nil && (t.UserID == nil || *t.UserID != *f.OwnerID) {
		return false
	}
	if f.Email != nil && !strings.EqualFold(t.UserEmail, strings.TrimSpace(*f.Email)) {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Category != nil && t.Category != *f.Category {
		return false
	}
	if f.AssigneeID != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssigneeID) {
		return false
	}
	if f.Unassigned && t.AssignedTo != nil {
		return false
	}
	if f.OrderID != nil && (t.OrderID == nil || *t.OrderID != *f.OrderID) {
		return false
	}
	return true
}

func page(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return []domain.Ticket{}
	}
	if limit > len(tickets)-offset {
		limit = len(tickets) - offset
	}
	return tickets[offset : offset+limit]
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(ctx context.Context, msg *domain.TicketMessage) error {
	defer r.s.lock(ctx)()
	r.s.nextID.message++
	msg.ID = r.s.nextID.message
	r.s.messages[msg.ID] = cloneMessage(*msg)
	return nil
}

func (r *messageRepo) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketMessage, error) {
	unlock := r.s.lock(ctx)
	result := []domain.TicketMessage{}
	for _, m := range r.s.messages {
		if m.TicketID == ticketID {
			result = append(result, cloneMessage(m))
		}
	}
	unlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *messageRepo) CountUnreadInTicket(ctx context.Context, ticketID int64, viewerID *int64) (int64, error) {
	defer r.s.lock(ctx)()
	var count int64
	for _, m := range r.s.messages {
		if m.TicketID == ticketID && !m.IsRead && !m.AuthoredBy(viewerID) {
			count++
		}
	}
	return count, nil
}

func (r *messageRepo) CountUnreadByTickets(ctx context.Context, ticketIDs []int64, viewerID *int64) (map[int64]int64, error) {
	wanted := make(map[int64]struct{}, len(ticketIDs))
	for _, id := range ticketIDs {
		wanted[id] = struct{}{}
	}
	defer r.s.lock(ctx)()
	counts := make(map[int64]int64, len(ticketIDs))
	for _, m := range r.s.messages {
		if _, ok := wanted[m.TicketID]; ok && !m.IsRead && !m.AuthoredBy(viewerID) {
			counts[m.TicketID]++
		}
	}
	return counts, nil
}

func (r *messageRepo) CountUnreadForOwner(ctx context.Context, userID int64) (int64, error) {
	return r.countAcrossTickets(ctx, userID, func(t domain.Ticket) bool {
		return t.UserID != nil && *t.UserID == userID
	}), nil
}

func (r *messageRepo) CountUnreadForAssignee(ctx context.Context, supportID int64) (int64, error) {
	return r.countAcrossTickets(ctx, supportID, func(t domain.Ticket) bool {
		return t.AssignedTo != nil && *t.AssignedTo == supportID
	}), nil
}

func (r *messageRepo) countAcrossTickets(ctx context.Context, viewerID int64, scope func(domain.Ticket) bool) int64 {
	defer r.s.lock(ctx)()
	var count int64
	for _, m := range r.s.messages {
		ticket, ok := r.s.tickets[m.TicketID]
		if !ok || !scope(ticket) {
			continue
		}
		if !m.IsRead && !m.AuthoredBy(&viewerID) {
			count++
		}
	}
	return count
}

func (r *messageRepo) MarkAllReadExceptSender(ctx context.Context, ticketID int64, readerID *int64) (int64, error) {
	defer r.s.lock(ctx)()
	var marked int64
	for id, m := range r.s.messages {
		if m.TicketID == ticketID && !m.IsRead && !m.AuthoredBy(readerID) {
			m.IsRead = true
			r.s.messages[id] = m
			marked++
		}
	}
	return marked, nil
}

func (r *messageRepo) DeleteByTicket(ctx context.Context, ticketID int64) error {
	defer r.s.lock(ctx)()
	for id, m := range r.s.messages {
		if m.TicketID == ticketID {
			delete(r.s.messages, id)
		}
	}
	return nil
}

type historyRepo struct{ s *Store }

func (r *historyRepo) Create(ctx context.Context, entry *domain.TicketHistory) error {
	defer r.s.lock(ctx)()
	r.s.nextID.history++
	entry.ID = r.s.nextID.history
	r.s.history[entry.ID] = *entry
	return nil
}

func (r *historyRepo) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	unlock := r.s.lock(ctx)
	result := []domain.TicketHistory{}
	for _, h := range r.s.history {
		if h.TicketID == ticketID {
			result = append(result, h)
		}
	}
	unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.UserID = cloneInt64(t.UserID)
	t.AssignedTo = cloneInt64(t.AssignedTo)
	t.OrderID = cloneInt64(t.OrderID)
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		t.ClosedAt = &closedAt
	}
	return t
}

func cloneMessage(m domain.TicketMessage) domain.TicketMessage {
	m.SenderID = cloneInt64(m.SenderID)
	if m.Attachments != nil {
		m.Attachments = append([]string(nil), m.Attachments...)
	}
	return m
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
