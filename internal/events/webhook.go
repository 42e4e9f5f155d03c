package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultWebhookTimeout bounds a single webhook delivery.
const DefaultWebhookTimeout = 2 * time.Second

// WebhookPublisher POSTs each event as JSON to a fixed URL.
type WebhookPublisher struct {
	url     string
	timeout time.Duration
}

func NewWebhookPublisher(url string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookPublisher{url: url, timeout: timeout}
}

// Publish delivers the event. Any status outside 2xx is an error.
func (p *WebhookPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	agent := fiber.Post(p.url).
		ContentType(fiber.MIMEApplicationJSON).
		Set("X-Event-Id", event.ID).
		Set("X-Event-Type", string(event.Type)).
		Body(data).
		Timeout(timeout)
	status, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("post webhook: %w", errors.Join(errs...))
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return fmt.Errorf("post webhook: unexpected status %d", status)
	}
	return nil
}
