package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream ticket events are appended to.
const DefaultStream = "support:ticket-events"

// StreamPublisher appends events to a Redis stream so downstream services
// (mailers, CRM sync) can consume them with consumer groups.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamPublisher builds a publisher. A maxLen of zero leaves the stream untrimmed.
func NewStreamPublisher(client redis.Cmdable, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Stream returns the target stream key.
func (p *StreamPublisher) Stream() string {
	return p.stream
}

// Publish appends the event. The entry carries the routing fields flat and
// the whole event as JSON under "data".
func (p *StreamPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_id":  event.ID,
			"type":      string(event.Type),
			"ticket_id": strconv.FormatInt(event.TicketID, 10),
			"data":      string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
