package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-ticketing/internal/api/http/handlers"
	"github.com/spec-kit/support-ticketing/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Support        *handlers.SupportTicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics serves /metrics when set.
	Metrics fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Optional)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Post("/password-recovery", cfg.Tickets.CreatePasswordRecovery)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/unread-count", cfg.Tickets.UnreadCount)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Post("/:id/read", cfg.Tickets.MarkRead)

	support := app.Group("/support", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	support.Get("/unread-count", cfg.Support.UnreadCount)
	support.Get("/tickets", cfg.Support.ListTickets)
	support.Get("/tickets/pending", cfg.Support.ListPending)
	support.Post("/tickets/receipts", cfg.Support.CreateReceipt)
	support.Get("/tickets/:id", cfg.Support.GetTicket)
	support.Get("/tickets/:id/history", cfg.Support.ListHistory)
	support.Post("/tickets/:id/messages", cfg.Support.AddMessage)
	support.Patch("/tickets/:id/status", cfg.Support.UpdateStatus)
	support.Patch("/tickets/:id/priority", cfg.Support.UpdatePriority)
	support.Post("/tickets/:id/assign", cfg.Support.Assign)
	support.Post("/tickets/:id/close", cfg.Support.Close)
	support.Post("/tickets/:id/reopen", cfg.Support.Reopen)
	support.Post("/tickets/:id/read", cfg.Support.MarkRead)
	support.Delete("/tickets/:id", auth.RequireAdmin(), cfg.Support.Delete)
}
