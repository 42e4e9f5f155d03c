package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-ticketing/internal/api/http/handlers"
	"github.com/spec-kit/support-ticketing/internal/auth"
	"github.com/spec-kit/support-ticketing/internal/domain"
	"github.com/spec-kit/support-ticketing/internal/events"
	"github.com/spec-kit/support-ticketing/internal/observability"
	"github.com/spec-kit/support-ticketing/internal/repository/memory"
	"github.com/spec-kit/support-ticketing/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	tickets := service.NewTicketService(service.TicketDependencies{
		Transactor:  store,
		TicketRepo:  store.Tickets(),
		MessageRepo: store.Messages(),
		HistoryRepo: store.History(),
		Dispatcher:  dispatcher,
		System:      service.SystemSender{Name: "Support Team", Email: "support@shop.test"},
	})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		Transactor:  store,
		TicketRepo:  store.Tickets(),
		HistoryRepo: store.History(),
		Dispatcher:  dispatcher,
	})
	tokens := auth.NewTokenManager("test-secret", "support-ticketing")

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-ticketing", "test", nil),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Support:        handlers.NewSupportTicketsHandler(tickets, assignments),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics.Handler(),
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) token(t *testing.T, id int64, role domain.SenderRole) string {
	t.Helper()
	token, err := s.tokens.GenerateToken(id, fmt.Sprintf("user%d@shop.test", id), fmt.Sprintf("User %d", id), role, time.Hour)
	require.NoError(t, err)
	return token
}

type response struct {
	status int
	body   map[string]any
	raw    string
}

func (r response) data() map[string]any {
	data, _ := r.body["data"].(map[string]any)
	return data
}

func (r response) errorCode() string {
	errBody, _ := r.body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func (s *testServer) do(t *testing.T, method, path, token string, payload any) response {
	t.Helper()
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, raw: string(raw)}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func ticketPath(id float64, suffix string) string {
	return fmt.Sprintf("/tickets/%d%s", int64(id), suffix)
}

func supportPath(id float64, suffix string) string {
	return fmt.Sprintf("/support/tickets/%d%s", int64(id), suffix)
}

func TestGuestTicketFlow(t *testing.T) {
	srv := newTestServer(t)

	created := srv.do(t, http.MethodPost, "/tickets", "", map[string]any{
		"email":   "guest@y.com",
		"name":    "Guest",
		"subject": "Where is my parcel",
		"message": "help",
	})
	require.Equal(t, http.StatusCreated, created.status, created.raw)
	ticket := created.data()
	assert.Equal(t, "OPEN", ticket["status"])
	assert.Equal(t, "Inquiry", ticket["category"])
	assert.Equal(t, "MEDIUM", ticket["priority"])
	assert.Equal(t, float64(1), ticket["unread_count"])
	assert.Len(t, ticket["messages"], 1)
	id := ticket["id"].(float64)

	got := srv.do(t, http.MethodGet, ticketPath(id, "?email=GUEST@y.com"), "", nil)
	assert.Equal(t, http.StatusOK, got.status, got.raw)

	denied := srv.do(t, http.MethodGet, ticketPath(id, "?email=other@y.com"), "", nil)
	assert.Equal(t, http.StatusNotFound, denied.status)
	assert.Equal(t, "NOT_FOUND", denied.errorCode())

	missing := srv.do(t, http.MethodGet, ticketPath(id+100, "?email=other@y.com"), "", nil)
	assert.Equal(t, http.StatusNotFound, missing.status)
	assert.Equal(t, denied.body, missing.body)

	anonymous := srv.do(t, http.MethodGet, ticketPath(id, ""), "", nil)
	assert.Equal(t, http.StatusUnauthorized, anonymous.status)
	assert.Equal(t, "UNAUTHORIZED", anonymous.errorCode())

	listed := srv.do(t, http.MethodGet, "/tickets?email=guest@y.com", "", nil)
	require.Equal(t, http.StatusOK, listed.status)
	assert.Len(t, listed.body["data"], 1)
}

func TestCreateTicket_Validation(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/tickets", "", map[string]any{
		"email":   "guest@y.com",
		"subject": "Empty",
		"message": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "VALIDATION_FAILED", resp.errorCode())

	resp = srv.do(t, http.MethodPost, "/tickets", "", map[string]any{
		"email":    "guest@y.com",
		"subject":  "Refund",
		"category": "Refund",
		"message":  "money back",
	})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = srv.do(t, http.MethodPost, "/tickets", "", map[string]any{
		"email":   "not-an-email",
		"subject": "Hello",
	})
	require.Equal(t, http.StatusBadRequest, resp.status)
	details := resp.body["error"].(map[string]any)["details"].(map[string]any)
	fields := details["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "message")
}

func TestSupportLifecycle(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.token(t, 7, domain.RoleSupport)

	created := srv.do(t, http.MethodPost, "/tickets", "", map[string]any{
		"email":   "guest@y.com",
		"subject": "Broken item",
		"message": "arrived broken",
	})
	require.Equal(t, http.StatusCreated, created.status, created.raw)
	id := created.data()["id"].(float64)

	reply := srv.do(t, http.MethodPost, supportPath(id, "/messages"), agent, map[string]any{"body": "sorry, sending a new one"})
	require.Equal(t, http.StatusCreated, reply.status, reply.raw)
	assert.Equal(t, "SUPPORT", reply.data()["sender_role"])

	view := srv.do(t, http.MethodGet, supportPath(id, ""), agent, nil)
	require.Equal(t, http.StatusOK, view.status)
	assert.Equal(t, "IN_PROGRESS", view.data()["status"])

	closed := srv.do(t, http.MethodPatch, supportPath(id, "/status"), agent, map[string]any{"status": "closed"})
	require.Equal(t, http.StatusOK, closed.status, closed.raw)
	assert.Equal(t, "CLOSED", closed.data()["status"])
	assert.NotNil(t, closed.data()["closed_at"])

	blocked := srv.do(t, http.MethodPost, ticketPath(id, "/messages"), "", map[string]any{
		"email": "guest@y.com",
		"body":  "thanks!",
	})
	assert.Equal(t, http.StatusConflict, blocked.status)
	assert.Equal(t, "TICKET_CLOSED", blocked.errorCode())

	invalid := srv.do(t, http.MethodPatch, supportPath(id, "/status"), agent, map[string]any{"status": "OPEN"})
	assert.Equal(t, http.StatusConflict, invalid.status)
	assert.Equal(t, "INVALID_TRANSITION", invalid.errorCode())

	reopened := srv.do(t, http.MethodPost, supportPath(id, "/reopen"), agent, nil)
	require.Equal(t, http.StatusOK, reopened.status, reopened.raw)
	assert.Equal(t, "IN_PROGRESS", reopened.data()["status"])
	assert.Nil(t, reopened.data()["closed_at"])

	history := srv.do(t, http.MethodGet, supportPath(id, "/history"), agent, nil)
	require.Equal(t, http.StatusOK, history.status)
	assert.Len(t, history.body["data"], 3)
}

func TestSupportAssignAndPending(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.token(t, 7, domain.RoleSupport)

	for _, priority := range []string{"LOW", "URGENT"} {
		resp := srv.do(t, http.MethodPost, "/tickets", "", map[string]any{
			"email":    "guest@y.com",
			"subject":  "Issue " + priority,
			"priority": priority,
			"message":  "help",
		})
		require.Equal(t, http.StatusCreated, resp.status, resp.raw)
	}

	pending := srv.do(t, http.MethodGet, "/support/tickets/pending", agent, nil)
	require.Equal(t, http.StatusOK, pending.status)
	items := pending.body["data"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "URGENT", items[0].(map[string]any)["priority"])
	firstID := items[0].(map[string]any)["id"].(float64)

	assigned := srv.do(t, http.MethodPost, supportPath(firstID, "/assign"), agent, nil)
	require.Equal(t, http.StatusOK, assigned.status, assigned.raw)
	assert.Equal(t, float64(7), assigned.data()["assigned_to"])
	assert.Equal(t, "IN_PROGRESS", assigned.data()["status"])

	unassigned := srv.do(t, http.MethodGet, "/support/tickets?unassigned=true", agent, nil)
	require.Equal(t, http.StatusOK, unassigned.status)
	assert.Len(t, unassigned.body["data"], 1)

	count := srv.do(t, http.MethodGet, "/support/unread-count", agent, nil)
	require.Equal(t, http.StatusOK, count.status)
	assert.Equal(t, float64(1), count.data()["unread_count"])
}

func TestRegisteredCustomerUnread(t *testing.T) {
	srv := newTestServer(t)
	customer := srv.token(t, 42, domain.RoleUser)
	agent := srv.token(t, 7, domain.RoleSupport)

	created := srv.do(t, http.MethodPost, "/tickets", customer, map[string]any{
		"subject": "Login trouble",
		"message": "cannot sign in",
	})
	require.Equal(t, http.StatusCreated, created.status, created.raw)
	assert.Equal(t, float64(42), created.data()["user_id"])
	assert.Equal(t, "user42@shop.test", created.data()["user_email"])
	id := created.data()["id"].(float64)

	count := srv.do(t, http.MethodGet, "/tickets/unread-count", customer, nil)
	require.Equal(t, http.StatusOK, count.status)
	assert.Equal(t, float64(0), count.data()["unread_count"])

	reply := srv.do(t, http.MethodPost, supportPath(id, "/messages"), agent, map[string]any{"body": "try resetting"})
	require.Equal(t, http.StatusCreated, reply.status)

	count = srv.do(t, http.MethodGet, "/tickets/unread-count", customer, nil)
	assert.Equal(t, float64(1), count.data()["unread_count"])

	read := srv.do(t, http.MethodPost, ticketPath(id, "/read"), customer, nil)
	require.Equal(t, http.StatusOK, read.status, read.raw)
	assert.Equal(t, float64(1), read.data()["marked"])

	count = srv.do(t, http.MethodGet, "/tickets/unread-count", customer, nil)
	assert.Equal(t, float64(0), count.data()["unread_count"])

	own := srv.do(t, http.MethodGet, "/tickets", customer, nil)
	require.Equal(t, http.StatusOK, own.status)
	assert.Len(t, own.body["data"], 1)

	stranger := srv.do(t, http.MethodGet, ticketPath(id, ""), srv.token(t, 43, domain.RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, stranger.status)
}

func TestSupportRoutesRequireStaff(t *testing.T) {
	srv := newTestServer(t)

	noToken := srv.do(t, http.MethodGet, "/support/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, noToken.status)
	assert.Equal(t, "UNAUTHORIZED", noToken.errorCode())

	garbage := srv.do(t, http.MethodGet, "/support/tickets", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, garbage.status)

	customer := srv.do(t, http.MethodGet, "/support/tickets", srv.token(t, 42, domain.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, customer.status)
	assert.Equal(t, "FORBIDDEN", customer.errorCode())
}

func TestDeleteRequiresAdmin(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.token(t, 7, domain.RoleSupport)
	admin := srv.token(t, 1, domain.RoleAdmin)

	created := srv.do(t, http.MethodPost, "/tickets", "", map[string]any{
		"email":   "guest@y.com",
		"subject": "Duplicate",
		"message": "oops",
	})
	require.Equal(t, http.StatusCreated, created.status)
	id := created.data()["id"].(float64)

	forbidden := srv.do(t, http.MethodDelete, supportPath(id, ""), agent, nil)
	assert.Equal(t, http.StatusForbidden, forbidden.status)

	deleted := srv.do(t, http.MethodDelete, supportPath(id, ""), admin, nil)
	assert.Equal(t, http.StatusNoContent, deleted.status)

	gone := srv.do(t, http.MethodGet, supportPath(id, ""), admin, nil)
	assert.Equal(t, http.StatusNotFound, gone.status)
	assert.Equal(t, "NOT_FOUND", gone.errorCode())
}

func TestHealthMetricsAndUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	live := srv.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, live.status)
	assert.Equal(t, "alive", live.body["status"])

	ready := srv.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, ready.status)

	unknown := srv.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, unknown.status)
	assert.Equal(t, "NOT_FOUND", unknown.errorCode())

	metrics := srv.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, metrics.status)
	assert.Contains(t, metrics.raw, "support_ticketing_http_requests_total")
	assert.Contains(t, metrics.raw, "support_ticketing_http_errors_total")
}

func TestMetricsSurviveManyFailedRequests(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/metrics", "", nil).status)
	for i := 0; i < 20; i++ {
		miss := srv.do(t, http.MethodGet, fmt.Sprintf("/tickets/%d?email=nobody@y.com", 1000+i), "", nil)
		require.Equal(t, http.StatusNotFound, miss.status)
	}

	scrape := srv.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, scrape.status, scrape.raw)
	assert.Contains(t, scrape.raw, `path="/tickets/:id"`)
	assert.NotContains(t, scrape.raw, "/tickets/1000")
}

func TestListTicketsClampsPaging(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 6; i++ {
		created := srv.do(t, http.MethodPost, "/tickets", "", map[string]any{
			"email":   "pager@y.com",
			"subject": fmt.Sprintf("ticket %d", i),
			"message": "hello",
		})
		require.Equal(t, http.StatusCreated, created.status, created.raw)
	}

	huge := srv.do(t, http.MethodGet, "/tickets?email=pager@y.com&page=9223372036854775807&page_size=9223372036854775806", "", nil)
	require.Equal(t, http.StatusOK, huge.status, huge.raw)
	assert.Empty(t, huge.body["data"])

	capped := srv.do(t, http.MethodGet, "/tickets?email=pager@y.com&page_size=1000", "", nil)
	require.Equal(t, http.StatusOK, capped.status)
	assert.Len(t, capped.body["data"], 6)
}

func TestResponsesCarryRequestID(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}
