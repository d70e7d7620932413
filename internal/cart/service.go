package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-cart/internal/obs"
)

// Locker serialises writers of the same cart instance.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service loads a cart, runs one engine operation on it and saves it back, holding the
// instance lock for the whole sequence.
type Service struct {
	Store               Store
	Locker              Locker
	Notifier            Notifier
	Logger              zerolog.Logger
	LockTTL             time.Duration
	LockKey             func(instance string) string
	AdditivePercentages bool
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 5 * time.Second
	}
	return s.LockTTL
}

func (s *Service) lockKey(instance string) string {
	if s.LockKey != nil {
		return s.LockKey(instance)
	}
	return "cart:lock:" + instance
}

func (s *Service) options(instance string) []Option {
	opts := []Option{
		WithStore(s.Store),
		WithTruncationHook(func(rule PriceRule, unapplied decimal.Decimal) {
			obs.IncFixedDiscountTruncated(string(rule.DiscountType))
			s.Logger.Warn().
				Str("instance", instance).
				Str("rule_id", rule.ID).
				Str("requested", rule.Discount.Fixed.String()).
				Str("unapplied", unapplied.String()).
				Msg("fixed discount exceeds cart amount")
		}),
	}
	if s.Notifier != nil {
		opts = append(opts, WithNotifier(s.Notifier))
	}
	if s.AdditivePercentages {
		opts = append(opts, WithAdditivePercentages())
	}
	return opts
}

func (s *Service) load(ctx context.Context, instance string) (*Cart, error) {
	snapshot, ok, err := s.Store.Load(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", instance, err)
	}
	if !ok {
		return New(instance, s.options(instance)...), nil
	}
	return Restore(snapshot, s.options(instance)...), nil
}

// Get returns the cart for instance. An instance that was never written, or was destroyed,
// yields an empty cart.
func (s *Service) Get(ctx context.Context, instance string) (*Cart, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("cart service not configured")
	}
	ctx, span := otel.Tracer("cart.Service").Start(ctx, "CartService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("cart.instance", instance))

	c, err := s.load(ctx, instance)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return c, nil
}

// TaxSummary returns the tax aggregated per tax rule for instance.
func (s *Service) TaxSummary(ctx context.Context, instance string) (*TaxRules, error) {
	c, err := s.Get(ctx, instance)
	if err != nil {
		return nil, err
	}
	return c.TaxSummary(), nil
}

// Add adds one item, or a batch when more than one is given, and returns the stored rows.
func (s *Service) Add(ctx context.Context, instance string, items ...LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to add: %w", ErrInvalidLineItem)
	}
	var added []LineItem
	_, err := s.mutate(ctx, "add", instance, func(ctx context.Context, c *Cart) error {
		if len(items) == 1 {
			item, err := c.Add(ctx, items[0])
			if err != nil {
				return err
			}
			added = []LineItem{item}
			return nil
		}
		var err error
		added, err = c.AddBatch(ctx, items)
		return err
	})
	return added, err
}

// Update replaces a row.
func (s *Service) Update(ctx context.Context, instance, rowID string, item LineItem) (LineItem, error) {
	var updated LineItem
	_, err := s.mutate(ctx, "update", instance, func(ctx context.Context, c *Cart) error {
		var err error
		updated, err = c.Update(ctx, rowID, item)
		return err
	})
	return updated, err
}

// SetQuantity changes the quantity of a row, removing it when quantity is zero or less.
func (s *Service) SetQuantity(ctx context.Context, instance, rowID string, quantity decimal.Decimal) (*Cart, error) {
	return s.mutate(ctx, "set_quantity", instance, func(ctx context.Context, c *Cart) error {
		return c.SetQuantity(ctx, rowID, quantity)
	})
}

// Remove deletes a row.
func (s *Service) Remove(ctx context.Context, instance, rowID string) (*Cart, error) {
	return s.mutate(ctx, "remove", instance, func(ctx context.Context, c *Cart) error {
		return c.Remove(ctx, rowID)
	})
}

// AddPriceRule applies rule to the cart and returns it with its computed discount amount.
func (s *Service) AddPriceRule(ctx context.Context, instance string, rule PriceRule) (PriceRule, error) {
	var stored PriceRule
	_, err := s.mutate(ctx, "add_price_rule", instance, func(_ context.Context, c *Cart) error {
		if err := c.AddPriceRule(rule); err != nil {
			obs.IncPriceRuleRejection(rejectionReason(err))
			return err
		}
		stored, _ = c.PriceRules().Get(rule.ID)
		return nil
	})
	return stored, err
}

// SetShipping records the shipping flag and amount.
func (s *Service) SetShipping(ctx context.Context, instance string, hasShipping bool, amount decimal.Decimal) (*Cart, error) {
	return s.mutate(ctx, "set_shipping", instance, func(_ context.Context, c *Cart) error {
		c.SetShipping(hasShipping, amount)
		return nil
	})
}

// Destroy clears the cart and removes it from the store.
func (s *Service) Destroy(ctx context.Context, instance string) error {
	_, err := s.mutate(ctx, "destroy", instance, func(ctx context.Context, c *Cart) error {
		return c.Destroy(ctx)
	})
	return err
}

// mutate runs fn on the current state of instance under the instance lock, then saves the
// cart unless fn destroyed it or it holds nothing. Rules and shipping set before the first row
// are saved too. The cart is saved even when fn fails so that batch elements added before the
// failure are kept.
func (s *Service) mutate(ctx context.Context, operation, instance string, fn func(context.Context, *Cart) error) (*Cart, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("cart service not configured")
	}
	ctx, span := otel.Tracer("cart.Service").Start(ctx, "CartService.Mutate")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("cart.instance", instance),
			attribute.String("cart.operation", operation),
			attribute.String("cart.result", result),
		)
		obs.ObserveCartOperation(operation, result, obs.DurationMillis(time.Since(start)))
	}()

	var c *Cart
	run := func(ctx context.Context) error {
		loaded, err := s.load(ctx, instance)
		if err != nil {
			return err
		}
		c = loaded
		fnErr := fn(ctx, loaded)
		if loaded.Destroyed() || !loaded.HasState() {
			return fnErr
		}
		if err := s.Store.Save(ctx, loaded.Snapshot()); err != nil {
			return errors.Join(fnErr, fmt.Errorf("save cart %s: %w", instance, err))
		}
		return fnErr
	}

	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, s.lockKey(instance), s.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		result = outcome(err)
		span.RecordError(err)
		evt := s.Logger.Warn()
		if result == "error" {
			evt = s.Logger.Error()
		}
		evt.Err(err).Str("instance", instance).Str("operation", operation).Msg("cart operation failed")
		return c, err
	}
	result = "ok"
	s.Logger.Debug().Str("instance", instance).Str("operation", operation).Int("rows", c.Count()).Msg("cart updated")
	return c, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateRule), errors.Is(err, ErrNotCombinable), errors.Is(err, ErrMutuallyExclusiveDiscount):
		return "rejected"
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidLineItem), errors.Is(err, ErrInvalidPriceRule):
		return "invalid"
	default:
		return "error"
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateRule):
		return "duplicate"
	case errors.Is(err, ErrNotCombinable):
		return "not_combinable"
	case errors.Is(err, ErrMutuallyExclusiveDiscount):
		return "mutually_exclusive"
	default:
		return "invalid"
	}
}
