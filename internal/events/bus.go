package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/cart"
)

// Event is a cart lifecycle event as seen by handlers and the worker.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Topic      string         `json:"topic"`
	Instance   string         `json:"instance"`
	Item       *cart.LineItem `json:"item,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Handler reacts to emitted events (logging, metrics, queueing).
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Bus stamps cart events and fans them out to downstream handlers. It implements cart.Notifier.
type Bus struct {
	Handlers []Handler
	Logger   zerolog.Logger
	Now      func() time.Time
}

var _ cart.Notifier = (*Bus)(nil)

func (b *Bus) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

// Emit builds the event and dispatches it to all configured handlers in order. Every handler
// runs even when an earlier one failed; the failures are joined.
func (b *Bus) Emit(ctx context.Context, topic, instance string, item *cart.LineItem) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	ev := Event{
		ID:         uuid.New(),
		Topic:      topic,
		Instance:   instance,
		OccurredAt: b.now(),
	}
	if item != nil {
		cloned := item.Clone()
		ev.Item = &cloned
	}
	var joined error
	for _, h := range b.Handlers {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: %s handler: %w", topic, err))
		}
	}
	return ev, joined
}

// Notify implements cart.Notifier. Handler failures are logged and never reach the cart.
func (b *Bus) Notify(ctx context.Context, instance string, event cart.Event, item *cart.LineItem) {
	ev, err := b.Emit(ctx, string(event), instance, item)
	if err != nil && b != nil {
		b.Logger.Error().Err(err).
			Str("topic", string(event)).
			Str("instance", instance).
			Str("event_id", ev.ID.String()).
			Msg("cart event handler failed")
	}
}
