package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/resilience"
)

// LogHandler writes every event to the logger.
type LogHandler struct {
	Logger zerolog.Logger
}

// Handle implements Handler.
func (h LogHandler) Handle(_ context.Context, ev Event) error {
	evt := h.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("instance", ev.Instance)
	if ev.Item != nil {
		evt = evt.Str("row_id", ev.Item.RowID).Str("quantity", ev.Item.Quantity.String())
	}
	evt.Msg("cart_event")
	return nil
}

// MetricsHandler counts events per topic.
type MetricsHandler struct{}

// Handle implements Handler.
func (MetricsHandler) Handle(_ context.Context, ev Event) error {
	obs.IncCartEvent(ev.Topic)
	return nil
}

// Enqueuer is the subset of *asynq.Client used to publish events.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueHandler forwards events to the worker through asynq.
type QueueHandler struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	// Topics restricts which topics are forwarded. Empty forwards everything.
	Topics []string
	// Breaker, when set, stops enqueue attempts while the queue keeps failing so cart writes
	// do not wait on a dead Redis.
	Breaker *resilience.Breaker
}

// Handle implements Handler.
func (h QueueHandler) Handle(ctx context.Context, ev Event) error {
	if h.Client == nil {
		return errors.New("events: queue client not configured")
	}
	if len(h.Topics) > 0 && !slices.Contains(h.Topics, ev.Topic) {
		return nil
	}
	task, err := NewTask(ev)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID.String())}
	if h.Queue != "" {
		opts = append(opts, asynq.Queue(h.Queue))
	}
	if h.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(h.MaxRetry))
	}
	enqueue := func(ctx context.Context) error {
		_, err := h.Client.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	if h.Breaker != nil {
		err = h.Breaker.Execute(ctx, enqueue)
	} else {
		err = enqueue(ctx)
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Topic, err)
	}
	return nil
}

// NewTask encodes ev as an asynq task.
func NewTask(ev Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("events: encode payload: %w", err)
	}
	return asynq.NewTask(TaskCartEvent, payload), nil
}

// DecodeTask decodes a task produced by NewTask.
func DecodeTask(t *asynq.Task) (Event, error) {
	if t == nil || t.Type() != TaskCartEvent {
		return Event{}, errors.New("events: unexpected task type")
	}
	var ev Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return Event{}, fmt.Errorf("events: decode payload: %w", err)
	}
	return ev, nil
}
