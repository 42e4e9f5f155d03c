package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-ticketing/internal/config"
	"github.com/spec-kit/support-ticketing/internal/events"
	"github.com/spec-kit/support-ticketing/internal/notification"
)

// EventRelay forwards committed domain events to an external channel.
type EventRelay interface {
	Publish(ctx context.Context, event events.Event) error
}

// EmailQueue accepts customer emails for asynchronous delivery.
type EmailQueue interface {
	Enqueue(email notification.Email) bool
}

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	relay      EventRelay
	webhook    EventRelay
	mail       EmailQueue
	logger     *zap.Logger
}

// NewNotificationService creates the service. relay and mail may be nil; a
// webhook is posted to only when cfg.WebhookURL is set.
func NewNotificationService(dispatcher events.Dispatcher, relay EventRelay, mail EmailQueue, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &NotificationService{
		dispatcher: dispatcher,
		relay:      relay,
		mail:       mail,
		logger:     logger,
	}
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		n.webhook = events.NewWebhookPublisher(url, cfg.WebhookTimeout())
	}
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.handle)
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info("ticket event",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.Int64("ticket_id", event.TicketID))

	switch event.Type {
	case events.EventTicketCreated, events.EventTicketMessageAdded:
		n.notifyEmail(event)
		n.notifyWebhook(ctx, event)
	case events.EventTicketStatusChanged, events.EventTicketAssigned:
		n.notifyWebhook(ctx, event)
	}

	if n.relay == nil {
		return nil
	}
	return n.relay.Publish(ctx, event)
}

func (n *NotificationService) notifyEmail(event events.Event) {
	email, ok := notification.ComposeTicketEmail(event)
	if !ok {
		return
	}
	if n.mail == nil {
		n.logger.Debug("email notification skipped, no mailer",
			zap.Int64("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)))
		return
	}
	n.mail.Enqueue(email)
}

func (n *NotificationService) notifyWebhook(ctx context.Context, event events.Event) {
	if n.webhook == nil {
		return
	}
	if err := n.webhook.Publish(ctx, event); err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.Int64("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
