package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ActivityTracker keeps a Redis sorted set of cart instances scored by their last activity,
// which lets operators find carts that were abandoned.
type ActivityTracker struct {
	R   *redis.Client
	Key string
}

func (a ActivityTracker) key() string {
	if a.Key == "" {
		return "toko:cart:activity"
	}
	return a.Key
}

// Handle implements Handler. Destroyed carts leave the set; other events refresh the score.
func (a ActivityTracker) Handle(ctx context.Context, ev Event) error {
	if a.R == nil {
		return errors.New("events: activity tracker redis client not configured")
	}
	switch ev.Topic {
	case TopicDestroyed:
		return a.R.ZRem(ctx, a.key(), ev.Instance).Err()
	case TopicDestroying:
		return nil
	default:
		return a.R.ZAdd(ctx, a.key(), redis.Z{Score: float64(ev.OccurredAt.Unix()), Member: ev.Instance}).Err()
	}
}

// IdleSince lists instances whose last activity is older than cutoff, oldest first.
func (a ActivityTracker) IdleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	if a.R == nil {
		return nil, errors.New("events: activity tracker redis client not configured")
	}
	return a.R.ZRangeByScore(ctx, a.key(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
}

// NewServeMux routes queued cart events to handler. Payloads that cannot be decoded are not
// retried.
func NewServeMux(handler Handler, logger zerolog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskCartEvent, func(ctx context.Context, t *asynq.Task) error {
		ev, err := DecodeTask(t)
		if err != nil {
			logger.Error().Err(err).Msg("drop cart event")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		ctx, span := otel.Tracer("events.worker").Start(ctx, "CartEvent "+ev.Topic)
		defer span.End()
		span.SetAttributes(attribute.String("cart.instance", ev.Instance), attribute.String("event.id", ev.ID.String()))
		if err := handler.Handle(ctx, ev); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Str("topic", ev.Topic).Str("instance", ev.Instance).Msg("cart event failed")
			return err
		}
		return nil
	})
	return mux
}

// Chain runs handlers in order and stops at the first failure.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) error {
		for _, h := range handlers {
			if h == nil {
				continue
			}
			if err := h.Handle(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}
