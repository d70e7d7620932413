package cart

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// TruncationHook is told when a fixed-amount rule could not be fully absorbed by the cart.
// unapplied is the part of the configured amount that was dropped.
type TruncationHook func(rule PriceRule, unapplied decimal.Decimal)

// Option configures a Cart.
type Option func(*Cart)

// WithStore sets the persistence collaborator. The cart saves itself after the first add to an
// instance that was never persisted and deletes itself on destroy; saving after any other
// mutation is the caller's job.
func WithStore(s Store) Option {
	return func(c *Cart) { c.store = s }
}

// WithNotifier sets the collaborator told about lifecycle events.
func WithNotifier(n Notifier) Option {
	return func(c *Cart) { c.notifier = n }
}

// WithAdditivePercentages makes newly added rows accumulate the percentage of every active
// percentage rule. By default a new row takes the percentage of the last rule only, which
// matches carts persisted by earlier releases.
func WithAdditivePercentages() Option {
	return func(c *Cart) { c.additivePercentages = true }
}

// WithTruncationHook registers a hook for fixed discounts larger than what the cart can absorb.
func WithTruncationHook(h TruncationHook) Option {
	return func(c *Cart) { c.onTruncate = h }
}

// Cart computes subtotal, tax, total and discounts for a set of rows and price rules.
// Totals are summed over the rows on every call and never cached. A Cart is not safe for
// concurrent use; callers serialise access per instance.
type Cart struct {
	instance string
	items    *LineItems
	rules    *PriceRules

	hasNonCombinableRule bool
	hasFreeShipping      bool
	hasShipping          bool
	shippingAmount       decimal.Decimal

	persisted           bool
	destroyed           bool
	store               Store
	notifier            Notifier
	additivePercentages bool
	onTruncate          TruncationHook
}

// New returns an empty cart for instance.
func New(instance string, opts ...Option) *Cart {
	c := &Cart{
		instance: instance,
		items:    &LineItems{},
		rules:    &PriceRules{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Instance returns the cart instance identifier.
func (c *Cart) Instance() string { return c.instance }

// Count returns the number of rows.
func (c *Cart) Count() int { return c.items.Len() }

// IsEmpty reports whether the cart holds no rows.
func (c *Cart) IsEmpty() bool { return c.items.Len() == 0 }

// Destroyed reports whether the last lifecycle step was Destroy. Any later add, price rule or
// shipping change clears it.
func (c *Cart) Destroyed() bool { return c.destroyed }

// HasState reports whether the cart holds anything worth persisting: rows, price rules or a
// shipping setting. A cart can carry rules and shipping before its first row.
func (c *Cart) HasState() bool {
	return c.items.Len() > 0 || c.rules.Len() > 0 || c.hasShipping || !c.shippingAmount.IsZero()
}

// HasNonCombinableRule reports whether a non-combinable rule is applied.
func (c *Cart) HasNonCombinableRule() bool { return c.hasNonCombinableRule }

// HasFreeShipping reports whether any applied rule grants free shipping.
func (c *Cart) HasFreeShipping() bool { return c.hasFreeShipping }

// HasShipping reports whether the cart contains goods to ship.
func (c *Cart) HasShipping() bool { return c.hasShipping }

// ShippingAmount returns the known shipping cost.
func (c *Cart) ShippingAmount() decimal.Decimal { return c.shippingAmount }

// Items returns a deep copy of the rows.
func (c *Cart) Items() *LineItems {
	return c.items.Map(LineItem.Clone)
}

// Item returns a copy of the row identified by rowID.
func (c *Cart) Item(rowID string) (LineItem, error) {
	item, ok := c.items.Get(rowID)
	if !ok {
		return LineItem{}, fmt.Errorf("row %s: %w", rowID, ErrNotFound)
	}
	return item.Clone(), nil
}

// Search returns copies of the rows matching keep.
func (c *Cart) Search(keep func(LineItem) bool) *LineItems {
	return c.items.Filter(keep).Map(LineItem.Clone)
}

// PriceRules returns a copy of the applied price rules.
func (c *Cart) PriceRules() *PriceRules {
	return c.rules.Map(func(r PriceRule) PriceRule { return r })
}

// NonCombinableRule returns the non-combinable rule, if one is applied. There is at most one.
func (c *Cart) NonCombinableRule() (PriceRule, bool) {
	for _, r := range c.rules.All() {
		if !r.Combinable {
			return r, true
		}
	}
	return PriceRule{}, false
}

// Add inserts item, or adds its quantity to the row with the same row identifier.
// New rows receive the active percentage rules; merged rows keep their discounts.
func (c *Cart) Add(ctx context.Context, item LineItem) (LineItem, error) {
	return c.add(ctx, item)
}

// AddBatch adds items one by one, in order. Each element is announced with EventBatchItem
// before it is added. When an element fails, the elements before it stay in the cart.
func (c *Cart) AddBatch(ctx context.Context, items []LineItem) ([]LineItem, error) {
	added := make([]LineItem, 0, len(items))
	for idx := range items {
		pending := items[idx].Clone()
		c.notify(ctx, EventBatchItem, &pending)
		stored, err := c.add(ctx, items[idx])
		if err != nil {
			return added, fmt.Errorf("batch element %d: %w", idx, err)
		}
		added = append(added, stored)
	}
	return added, nil
}

func (c *Cart) add(ctx context.Context, item LineItem) (LineItem, error) {
	if item.ID == "" && item.RowID == "" {
		return LineItem{}, fmt.Errorf("line item without id: %w", ErrInvalidLineItem)
	}
	if !item.Quantity.IsPositive() {
		return LineItem{}, fmt.Errorf("quantity %s for %s: %w", item.Quantity, item.ID, ErrInvalidQuantity)
	}
	item = item.Clone()
	if item.RowID == "" {
		item.RowID = RowID(item.ID, item.Options)
	}
	c.destroyed = false

	if existing, ok := c.items.Get(item.RowID); ok {
		existing.Quantity = existing.Quantity.Add(item.Quantity)
		c.items.Put(item.RowID, existing)
	} else {
		c.items.Put(item.RowID, item)
		c.applyPercentageRulesToItem(item.RowID)
	}
	c.updatePercentageDiscounts()

	stored, _ := c.items.Get(item.RowID)
	stored = stored.Clone()
	c.notify(ctx, EventItemAdded, &stored)

	if !c.persisted {
		if err := c.save(ctx); err != nil {
			return stored, err
		}
	}
	return stored, nil
}

// Update replaces the row identified by rowID with item. The replacement is appended after
// the remaining rows and receives the active percentage rules like a newly added row. When
// the replacement has the row identifier of another row, its quantity is merged into that row
// as Add would.
func (c *Cart) Update(ctx context.Context, rowID string, item LineItem) (LineItem, error) {
	if !c.items.Has(rowID) {
		return LineItem{}, fmt.Errorf("row %s: %w", rowID, ErrNotFound)
	}
	if item.ID == "" && item.RowID == "" {
		return LineItem{}, fmt.Errorf("replacement for row %s without id: %w", rowID, ErrInvalidLineItem)
	}
	if !item.Quantity.IsPositive() {
		return LineItem{}, fmt.Errorf("quantity %s for %s: %w", item.Quantity, rowID, ErrInvalidQuantity)
	}
	item = item.Clone()
	if item.RowID == "" {
		item.RowID = RowID(item.ID, item.Options)
	}
	c.items.Remove(rowID)
	if existing, ok := c.items.Get(item.RowID); ok {
		existing.Quantity = existing.Quantity.Add(item.Quantity)
		c.items.Put(item.RowID, existing)
	} else {
		c.items.Put(item.RowID, item)
		c.applyPercentageRulesToItem(item.RowID)
	}
	c.updatePercentageDiscounts()
	return c.Item(item.RowID)
}

// SetQuantity changes the quantity of a row. A quantity of zero or less removes the row,
// which destroys the cart when it was the last one.
func (c *Cart) SetQuantity(ctx context.Context, rowID string, quantity decimal.Decimal) error {
	item, ok := c.items.Get(rowID)
	if !ok {
		return fmt.Errorf("row %s: %w", rowID, ErrNotFound)
	}
	if !quantity.IsPositive() {
		return c.Remove(ctx, rowID)
	}
	item.Quantity = quantity
	c.items.Put(rowID, item)
	c.updatePercentageDiscounts()
	return nil
}

// Remove deletes a row. Removing the last row destroys the cart.
func (c *Cart) Remove(ctx context.Context, rowID string) error {
	item, ok := c.items.Get(rowID)
	if !ok {
		return fmt.Errorf("row %s: %w", rowID, ErrNotFound)
	}
	removed := item.Clone()
	c.notify(ctx, EventItemRemoving, &removed)
	c.items.Remove(rowID)
	c.notify(ctx, EventItemRemoved, &removed)

	if c.items.Len() == 0 {
		return c.Destroy(ctx)
	}
	c.updatePercentageDiscounts()
	return nil
}

// Destroy clears every row, rule and flag and deletes the persisted entry. Calling it on an
// empty cart is safe.
func (c *Cart) Destroy(ctx context.Context) error {
	c.notify(ctx, EventDestroying, nil)

	c.items = &LineItems{}
	c.rules = &PriceRules{}
	c.hasNonCombinableRule = false
	c.hasFreeShipping = false
	c.hasShipping = false
	c.shippingAmount = decimal.Zero

	var err error
	if c.store != nil {
		if delErr := c.store.Delete(ctx, c.instance); delErr != nil {
			err = fmt.Errorf("delete cart %s: %w", c.instance, delErr)
		}
	}
	c.persisted = false
	c.destroyed = true

	c.notify(ctx, EventDestroyed, nil)
	return err
}

// SetShipping records whether the cart ships and what shipping costs.
func (c *Cart) SetShipping(hasShipping bool, amount decimal.Decimal) {
	c.hasShipping = hasShipping
	c.shippingAmount = amount
	c.destroyed = false
	c.updatePercentageDiscounts()
}

// AddPriceRule validates rule against the applied rules, stores it and applies it to every row.
func (c *Cart) AddPriceRule(rule PriceRule) error {
	if rule.ID == "" || !rule.DiscountType.Valid() {
		return fmt.Errorf("rule %q with type %q: %w", rule.ID, rule.DiscountType, ErrInvalidPriceRule)
	}
	if c.rules.Has(rule.ID) {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrDuplicateRule)
	}
	if c.hasNonCombinableRule {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotCombinable)
	}
	if excluded, ok := rule.DiscountType.excludes(); ok && c.hasRuleOfType(excluded) {
		return fmt.Errorf("rule %s of type %s: %w", rule.ID, rule.DiscountType, ErrMutuallyExclusiveDiscount)
	}

	rule.DiscountAmount = decimal.Zero
	c.destroyed = false
	c.rules.Put(rule.ID, rule)
	c.applyPriceRule(rule)
	c.updatePercentageDiscounts()
	return nil
}

func (c *Cart) hasRuleOfType(t DiscountType) bool {
	for _, r := range c.rules.All() {
		if r.DiscountType == t {
			return true
		}
	}
	return false
}

// applyPriceRule applies a freshly inserted rule to the existing rows. Percentages add up with
// the ones already on each row; fixed amounts are allocated once.
func (c *Cart) applyPriceRule(rule PriceRule) {
	switch rule.DiscountType {
	case DiscountSubtotalPercentage:
		c.items = c.items.Map(func(it LineItem) LineItem {
			it.DiscountSubtotalPercentage = it.DiscountSubtotalPercentage.Add(rule.Discount.Percentage)
			return it
		})
	case DiscountTotalPercentage:
		c.items = c.items.Map(func(it LineItem) LineItem {
			it.DiscountTotalPercentage = it.DiscountTotalPercentage.Add(rule.Discount.Percentage)
			return it
		})
	case DiscountSubtotalFixedAmount:
		c.applyFixedRule(rule, scopeSubtotal)
	case DiscountTotalFixedAmount:
		c.applyFixedRule(rule, scopeTotal)
	}
}

func (c *Cart) applyFixedRule(rule PriceRule, sc scope) {
	plan, applied := allocateFixed(c.items, rule.Discount.Fixed, sc)
	c.items = c.items.Map(func(it LineItem) LineItem {
		if amount, ok := plan[it.RowID]; ok {
			return sc.accrue(it, amount)
		}
		return it
	})
	rule.DiscountAmount = applied
	c.rules.Put(rule.ID, rule)

	if applied.LessThan(rule.Discount.Fixed) && c.onTruncate != nil {
		c.onTruncate(rule, rule.Discount.Fixed.Sub(applied))
	}
}

// applyPercentageRulesToItem gives a new row the percentages of the active rules.
func (c *Cart) applyPercentageRulesToItem(rowID string) {
	item, ok := c.items.Get(rowID)
	if !ok {
		return
	}
	for _, rule := range c.rules.All() {
		switch rule.DiscountType {
		case DiscountSubtotalPercentage:
			if c.additivePercentages {
				item.DiscountSubtotalPercentage = item.DiscountSubtotalPercentage.Add(rule.Discount.Percentage)
			} else {
				item.DiscountSubtotalPercentage = rule.Discount.Percentage
			}
		case DiscountTotalPercentage:
			if c.additivePercentages {
				item.DiscountTotalPercentage = item.DiscountTotalPercentage.Add(rule.Discount.Percentage)
			} else {
				item.DiscountTotalPercentage = rule.Discount.Percentage
			}
		}
	}
	c.items.Put(rowID, item)
}

// updatePercentageDiscounts refreshes the cart-wide flags and the discount amount reported by
// every percentage rule. It does not touch the rows.
func (c *Cart) updatePercentageDiscounts() {
	c.hasNonCombinableRule = false
	c.hasFreeShipping = false
	for _, r := range c.rules.All() {
		if !r.Combinable {
			c.hasNonCombinableRule = true
		}
		if r.FreeShipping {
			c.hasFreeShipping = true
		}
	}
	chargeShipping := c.hasShipping && !c.hasFreeShipping

	subtotal := c.Subtotal()
	totalBeforePercentage := c.Total().Add(c.DiscountTotalPercentageAmount())
	c.rules = c.rules.Map(func(r PriceRule) PriceRule {
		var base decimal.Decimal
		switch r.DiscountType {
		case DiscountSubtotalPercentage:
			base = subtotal
		case DiscountTotalPercentage:
			base = totalBeforePercentage
		default:
			return r
		}
		if r.Discount.ApplyShippingAmount && chargeShipping {
			base = base.Add(c.shippingAmount)
		}
		r.DiscountAmount = percentOf(base, r.Discount.Percentage)
		return r
	})
}

func (c *Cart) save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, c.Snapshot()); err != nil {
		return fmt.Errorf("save cart %s: %w", c.instance, err)
	}
	c.persisted = true
	return nil
}

func (c *Cart) notify(ctx context.Context, event Event, item *LineItem) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, c.instance, event, item)
}
