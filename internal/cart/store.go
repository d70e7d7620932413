package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists cart snapshots keyed by cart instance.
type Store interface {
	// Load returns the snapshot for instance and whether one existed.
	Load(ctx context.Context, instance string) (Snapshot, bool, error)
	Save(ctx context.Context, snapshot Snapshot) error
	Delete(ctx context.Context, instance string) error
}

// Snapshot is the persisted form of a cart.
type Snapshot struct {
	Instance             string          `json:"instance"`
	Items                []LineItem      `json:"items"`
	PriceRules           []PriceRule     `json:"priceRules"`
	HasNonCombinableRule bool            `json:"hasNonCombinableRule"`
	HasFreeShipping      bool            `json:"hasFreeShipping"`
	HasShipping          bool            `json:"hasShipping"`
	ShippingAmount       decimal.Decimal `json:"shippingAmount"`
}

// Snapshot captures the cart state for persistence. The result shares nothing with the cart.
func (c *Cart) Snapshot() Snapshot {
	items := make([]LineItem, 0, c.items.Len())
	for _, it := range c.items.All() {
		items = append(items, it.Clone())
	}
	return Snapshot{
		Instance:             c.instance,
		Items:                items,
		PriceRules:           c.rules.Values(),
		HasNonCombinableRule: c.hasNonCombinableRule,
		HasFreeShipping:      c.hasFreeShipping,
		HasShipping:          c.hasShipping,
		ShippingAmount:       c.shippingAmount,
	}
}

// Restore rebuilds a cart that was previously saved to a Store. The cart-wide flags and the
// percentage snapshots are derived again from the restored rules.
func Restore(s Snapshot, opts ...Option) *Cart {
	c := New(s.Instance, opts...)
	for _, it := range s.Items {
		c.items.Put(it.RowID, it.Clone())
	}
	for _, r := range s.PriceRules {
		c.rules.Put(r.ID, r)
	}
	c.hasShipping = s.HasShipping
	c.shippingAmount = s.ShippingAmount
	c.persisted = true
	c.updatePercentageDiscounts()
	return c
}
