package events

import "github.com/noah-isme/toko-cart/internal/cart"

// TaskCartEvent is the asynq task type carrying a cart event to the worker.
const TaskCartEvent = "cart:event"

// Topic constants for cart lifecycle events.
const (
	TopicItemAdded    = string(cart.EventItemAdded)
	TopicItemRemoving = string(cart.EventItemRemoving)
	TopicItemRemoved  = string(cart.EventItemRemoved)
	TopicDestroying   = string(cart.EventDestroying)
	TopicDestroyed    = string(cart.EventDestroyed)
	TopicBatchItem    = string(cart.EventBatchItem)
)

// DefaultTopics returns every topic a cart publishes.
func DefaultTopics() []string {
	out := make([]string, 0, len(cart.Events()))
	for _, ev := range cart.Events() {
		out = append(out, string(ev))
	}
	return out
}
