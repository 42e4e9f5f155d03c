package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/events"
	"github.com/spec-kit/support-ticketing/internal/repository"
	apperrors "github.com/spec-kit/support-ticketing/pkg/util/errorutil"
)

func TestSendMessage_AutoTransition(t *testing.T) {
	tests := []struct {
		name       string
		sender     Sender
		start      domain.TicketStatus
		wantStatus domain.TicketStatus
		automatic  bool
	}{
		{"support reply starts work", agent(7), domain.TicketStatusOpen, domain.TicketStatusInProgress, true},
		{"admin reply starts work", admin(1), domain.TicketStatusOpen, domain.TicketStatusInProgress, true},
		{"customer reply keeps open", customer(42), domain.TicketStatusOpen, domain.TicketStatusOpen, false},
		{"support follow-up on resolved", agent(7), domain.TicketStatusResolved, domain.TicketStatusResolved, false},
		{"customer reply on resolved", customer(42), domain.TicketStatusResolved, domain.TicketStatusResolved, false},
		{"support reply in progress", agent(7), domain.TicketStatusInProgress, domain.TicketStatusInProgress, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			ticket := f.createTicket(t, ptr(int64(42)), "a@x.com")
			if tt.start != domain.TicketStatusOpen {
				_, err := f.tickets.UpdateStatus(ctx, agent(7), ticket.ID, tt.start)
				require.NoError(t, err)
			}
			before := f.reload(t, ticket.ID)
			historyBefore, err := f.tickets.ListHistory(ctx, ticket.ID)
			require.NoError(t, err)

			msg, err := f.tickets.SendMessage(ctx, ticket.ID, tt.sender, "reply", []string{"https://cdn.shop.test/a.png"})
			require.NoError(t, err)
			assert.Equal(t, ticket.ID, msg.TicketID)
			assert.False(t, msg.IsRead)
			assert.Equal(t, tt.sender.Role, msg.SenderRole)

			after := f.reload(t, ticket.ID)
			assert.Equal(t, tt.wantStatus, after.Status)
			assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

			history, err := f.tickets.ListHistory(ctx, ticket.ID)
			require.NoError(t, err)
			if tt.automatic {
				require.Len(t, history, len(historyBefore)+1)
				last := history[len(history)-1]
				assert.Equal(t, true, last.NewValue["automatic"])
				assert.Equal(t, tt.sender.Role, last.ChangedByRole)

				statusEvents := f.recorder.ofType(events.EventTicketStatusChanged)
				require.NotEmpty(t, statusEvents)
				payload := statusEvents[len(statusEvents)-1].Payload.(events.TicketStatusChangedPayload)
				assert.True(t, payload.Automatic)
			} else {
				assert.Len(t, history, len(historyBefore))
			}
			assert.Len(t, f.recorder.ofType(events.EventTicketMessageAdded), 1)
		})
	}
}

func TestSendMessage_ClosedTicket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(int64(42)), "a@x.com")
	_, err := f.tickets.Close(ctx, admin(1), ticket.ID)
	require.NoError(t, err)

	for _, sender := range []Sender{customer(42), agent(7), admin(1)} {
		_, err := f.tickets.SendMessage(ctx, ticket.ID, sender, "anyone there?", nil)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeTicketClosed, apperrors.CodeOf(err))
	}
	assert.Len(t, f.messages(t, ticket.ID), 1)
	assert.Empty(t, f.recorder.ofType(events.EventTicketMessageAdded))
}

func TestSendMessage_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(int64(42)), "a@x.com")

	_, err := f.tickets.SendMessage(ctx, 999, agent(7), "hello", nil)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = f.tickets.SendMessage(ctx, ticket.ID, agent(7), "  ", nil)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = f.tickets.SendMessage(ctx, ticket.ID, Sender{Role: "BOT"}, "hello", nil)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestSendMessage_RollsBackWhenAuditFails(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithHistory(t, failingHistory{})
	ticket := f.createTicket(t, ptr(int64(42)), "a@x.com")

	_, err := f.tickets.SendMessage(ctx, ticket.ID, agent(7), "on it", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInternal, apperrors.CodeOf(err))

	assert.Len(t, f.messages(t, ticket.ID), 1)
	assert.Equal(t, domain.TicketStatusOpen, f.reload(t, ticket.ID).Status)
	assert.Empty(t, f.recorder.ofType(events.EventTicketMessageAdded))
}

func TestMarkRead_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := int64(42)
	ticket := f.createTicket(t, &owner, "a@x.com")
	_, err := f.tickets.SendMessage(ctx, ticket.ID, agent(7), "first reply", nil)
	require.NoError(t, err)
	_, err = f.tickets.SendMessage(ctx, ticket.ID, agent(7), "second reply", nil)
	require.NoError(t, err)

	view, err := f.tickets.GetForCaller(ctx, ticket.ID, Caller{UserID: &owner})
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.UnreadCount)

	marked, err := f.tickets.MarkRead(ctx, ticket.ID, &owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	marked, err = f.tickets.MarkRead(ctx, ticket.ID, &owner)
	require.NoError(t, err)
	assert.Zero(t, marked)

	view, err = f.tickets.GetForCaller(ctx, ticket.ID, Caller{UserID: &owner})
	require.NoError(t, err)
	assert.Zero(t, view.UnreadCount)
	assert.Len(t, f.recorder.ofType(events.EventTicketRead), 1)

	// The customer's own seed message is still unread for the agent.
	agentView, err := f.tickets.GetTicket(ctx, ticket.ID, ptr(int64(7)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), agentView.UnreadCount)

	_, err = f.tickets.MarkRead(ctx, 999, &owner)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestMarkRead_Guest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, nil, "guest@y.com")
	_, err := f.tickets.SendMessage(ctx, ticket.ID, Sender{Email: "guest@y.com", Role: domain.RoleUser}, "still waiting", nil)
	require.NoError(t, err)
	_, err = f.tickets.SendMessage(ctx, ticket.ID, agent(7), "reply", nil)
	require.NoError(t, err)

	view, err := f.tickets.GetForCaller(ctx, ticket.ID, Caller{Email: "guest@y.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.UnreadCount)

	marked, err := f.tickets.MarkRead(ctx, ticket.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	agentView, err := f.tickets.GetTicket(ctx, ticket.ID, ptr(int64(7)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), agentView.UnreadCount)
}

func TestCountUnreadForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.createTicket(t, ptr(int64(42)), "a@x.com")
	second := f.createTicket(t, ptr(int64(42)), "a@x.com")
	other := f.createTicket(t, ptr(int64(43)), "b@x.com")

	for _, id := range []int64{first.ID, first.ID, second.ID, other.ID} {
		_, err := f.tickets.SendMessage(ctx, id, agent(7), "reply", nil)
		require.NoError(t, err)
	}
	_, err := f.tickets.SendMessage(ctx, first.ID, customer(42), "follow up", nil)
	require.NoError(t, err)

	var sum int64
	for _, id := range []int64{first.ID, second.ID} {
		view, err := f.tickets.GetForCaller(ctx, id, Caller{UserID: ptr(int64(42))})
		require.NoError(t, err)
		sum += view.UnreadCount
	}

	total, err := f.tickets.CountUnreadForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, sum, total)

	_, err = f.tickets.MarkRead(ctx, first.ID, ptr(int64(42)))
	require.NoError(t, err)
	total, err = f.tickets.CountUnreadForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestCountUnreadForSupport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.createTicket(t, ptr(int64(42)), "a@x.com")
	theirs := f.createTicket(t, ptr(int64(43)), "b@x.com")
	f.createTicket(t, ptr(int64(44)), "c@x.com")

	_, err := f.assignments.Assign(ctx, agent(7), mine.ID, 7, "Agent")
	require.NoError(t, err)
	_, err = f.assignments.Assign(ctx, agent(7), theirs.ID, 8, "Other Agent")
	require.NoError(t, err)
	_, err = f.tickets.SendMessage(ctx, mine.ID, customer(42), "any news?", nil)
	require.NoError(t, err)
	_, err = f.tickets.SendMessage(ctx, mine.ID, agent(7), "yes", nil)
	require.NoError(t, err)

	count, err := f.tickets.CountUnreadForSupport(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = f.tickets.CountUnreadForSupport(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListPending_Order(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	create := func(priority domain.TicketPriority) int64 {
		view, err := f.tickets.CreateTicket(ctx, CreateTicketInput{
			UserEmail: "a@x.com", Subject: string(priority), Body: "help", Priority: priority,
		})
		require.NoError(t, err)
		return view.Ticket.ID
	}
	lowOld := create(domain.TicketPriorityLow)
	mediumOld := create(domain.TicketPriorityMedium)
	urgent := create(domain.TicketPriorityUrgent)
	resolvedHigh := create(domain.TicketPriorityHigh)
	mediumNew := create(domain.TicketPriorityMedium)
	high := create(domain.TicketPriorityHigh)

	_, err := f.tickets.UpdateStatus(ctx, agent(7), resolvedHigh, domain.TicketStatusResolved)
	require.NoError(t, err)
	_, err = f.tickets.SendMessage(ctx, mediumOld, agent(7), "working on it", nil)
	require.NoError(t, err)

	views, err := f.tickets.ListPending(ctx, ptr(int64(7)), Page{})
	require.NoError(t, err)

	ids := make([]int64, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.Ticket.ID)
	}
	assert.Equal(t, []int64{urgent, high, mediumOld, mediumNew, lowOld}, ids)

	page, err := f.tickets.ListPending(ctx, nil, Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, high, page[0].Ticket.ID)
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	owned := f.createTicket(t, ptr(int64(42)), "a@x.com")
	guest := f.createTicket(t, nil, "Guest@Y.com")
	receipt, err := f.tickets.CreateReceiptTicket(ctx, ReceiptTicketInput{
		UserID: ptr(int64(42)), UserEmail: "a@x.com", OrderID: ptr(int64(777)), Body: "receipt",
	})
	require.NoError(t, err)
	_, err = f.assignments.Assign(ctx, agent(7), owned.ID, 7, "Agent")
	require.NoError(t, err)
	_, err = f.tickets.SendMessage(ctx, owned.ID, agent(7), "hello", nil)
	require.NoError(t, err)

	ids := func(views []TicketView) []int64 {
		out := make([]int64, 0, len(views))
		for _, v := range views {
			out = append(out, v.Ticket.ID)
		}
		return out
	}

	byOwner, err := f.tickets.ListByOwner(ctx, 42, Page{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{owned.ID, receipt.Ticket.ID}, ids(byOwner))
	for _, v := range byOwner {
		switch v.Ticket.ID {
		case owned.ID:
			assert.Equal(t, int64(1), v.UnreadCount)
		case receipt.Ticket.ID:
			assert.Equal(t, int64(1), v.UnreadCount)
		}
	}

	byEmail, err := f.tickets.ListByEmail(ctx, "guest@y.com", nil, Page{})
	require.NoError(t, err)
	assert.Equal(t, []int64{guest.ID}, ids(byEmail))
	assert.Zero(t, byEmail[0].UnreadCount)

	_, err = f.tickets.ListByEmail(ctx, " ", nil, Page{})
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	byStatus, err := f.tickets.ListByStatus(ctx, domain.TicketStatusInProgress, nil, Page{})
	require.NoError(t, err)
	assert.Equal(t, []int64{owned.ID}, ids(byStatus))

	byCategory, err := f.tickets.ListByCategory(ctx, domain.CategoryBillingReceipt, nil, Page{})
	require.NoError(t, err)
	assert.Equal(t, []int64{receipt.Ticket.ID}, ids(byCategory))

	byAssignee, err := f.tickets.ListByAssignee(ctx, 7, Page{})
	require.NoError(t, err)
	assert.Equal(t, []int64{owned.ID}, ids(byAssignee))
	assert.Equal(t, int64(1), byAssignee[0].UnreadCount)

	unassigned, err := f.tickets.ListUnassigned(ctx, nil, Page{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{guest.ID, receipt.Ticket.ID}, ids(unassigned))

	byOrder, err := f.tickets.ListByOrder(ctx, 777, nil, Page{})
	require.NoError(t, err)
	assert.Equal(t, []int64{receipt.Ticket.ID}, ids(byOrder))

	recent, err := f.tickets.ListWithFilter(ctx, repository.TicketFilter{Limit: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{owned.ID}, ids(recent))
}
