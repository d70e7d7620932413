package cart

import "context"

// Event names a point in the cart lifecycle that is announced to the Notifier.
type Event string

const (
	// EventItemAdded fires after a row was inserted or merged.
	EventItemAdded Event = "cart.added"
	// EventItemRemoving fires before a row is removed.
	EventItemRemoving Event = "cart.remove"
	// EventItemRemoved fires after a row was removed.
	EventItemRemoved Event = "cart.removed"
	// EventDestroying fires before the cart state is cleared.
	EventDestroying Event = "cart.destroy"
	// EventDestroyed fires after the cart state was cleared.
	EventDestroyed Event = "cart.destroyed"
	// EventBatchItem fires for every element of a batch add, before it is added.
	EventBatchItem Event = "cart.batch"
)

// Events lists every event the cart emits.
func Events() []Event {
	return []Event{
		EventItemAdded,
		EventItemRemoving,
		EventItemRemoved,
		EventDestroying,
		EventDestroyed,
		EventBatchItem,
	}
}

// Notifier receives lifecycle events synchronously, in the order the cart performs them.
// item is a copy and is nil for destroy events. The cart never reads anything back.
type Notifier interface {
	Notify(ctx context.Context, instance string, event Event, item *LineItem)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, instance string, event Event, item *LineItem)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, instance string, event Event, item *LineItem) {
	f(ctx, instance, event, item)
}
