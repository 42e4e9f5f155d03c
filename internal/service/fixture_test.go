package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/events"
	"github.com/spec-kit/support-ticketing/internal/repository"
	"github.com/spec-kit/support-ticketing/internal/repository/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so every mutation gets a distinct timestamp.
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store       *memory.Store
	tickets     *TicketService
	assignments *AssignmentService
	dispatcher  events.Dispatcher
	recorder    *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithHistory(t, nil)
}

// newFixtureWithHistory lets a test swap the history repository, e.g. to
// inject a failure inside a transaction.
func newFixtureWithHistory(t *testing.T, history repository.TicketHistoryRepository) *fixture {
	t.Helper()
	store := memory.NewStore()
	if history == nil {
		history = store.History()
	}
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	dispatcher := events.NewInMemoryDispatcher()
	recorder := &eventRecorder{}
	events.SubscribeAll(dispatcher, recorder.handle)
	return &fixture{
		store: store,
		tickets: NewTicketService(TicketDependencies{
			Transactor:  store,
			TicketRepo:  store.Tickets(),
			MessageRepo: store.Messages(),
			HistoryRepo: history,
			Dispatcher:  dispatcher,
			System:      SystemSender{Name: "Support Team", Email: "support@shop.test"},
			Clock:       clock.Now,
		}),
		assignments: NewAssignmentService(AssignmentDependencies{
			Transactor:  store,
			TicketRepo:  store.Tickets(),
			HistoryRepo: history,
			Dispatcher:  dispatcher,
			Clock:       clock.Now,
		}),
		dispatcher: dispatcher,
		recorder:   recorder,
	}
}

func (f *fixture) createTicket(t *testing.T, ownerID *int64, email string) *domain.Ticket {
	t.Helper()
	view, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		UserID:    ownerID,
		UserEmail: email,
		UserName:  "Customer",
		Subject:   "Order did not arrive",
		Body:      "help",
	})
	require.NoError(t, err)
	return &view.Ticket
}

func (f *fixture) reload(t *testing.T, ticketID int64) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Tickets().GetByID(context.Background(), ticketID)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) messages(t *testing.T, ticketID int64) []domain.TicketMessage {
	t.Helper()
	msgs, err := f.store.Messages().ListByTicket(context.Background(), ticketID)
	require.NoError(t, err)
	return msgs
}

func ptr[T any](v T) *T {
	return &v
}

func agent(id int64) Sender {
	return Sender{ID: ptr(id), Email: "agent@shop.test", Name: "Agent", Role: domain.RoleSupport}
}

func admin(id int64) Sender {
	return Sender{ID: ptr(id), Email: "admin@shop.test", Name: "Admin", Role: domain.RoleAdmin}
}

func customer(id int64) Sender {
	return Sender{ID: ptr(id), Email: "a@x.com", Name: "Customer", Role: domain.RoleUser}
}

var errHistoryDown = errors.New("history store unavailable")

type failingHistory struct {
	repository.TicketHistoryRepository
}

func (failingHistory) Create(context.Context, *domain.TicketHistory) error {
	return errHistoryDown
}
