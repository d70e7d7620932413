package cart

import "github.com/shopspring/decimal"

func (c *Cart) sum(fn func(LineItem) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items.All() {
		total = total.Add(fn(it))
	}
	return total
}

// Quantity is the sum of the row quantities.
func (c *Cart) Quantity() decimal.Decimal { return c.sum(func(i LineItem) decimal.Decimal { return i.Quantity }) }

// Subtotal is the sum of the row subtotals, before discounts.
func (c *Cart) Subtotal() decimal.Decimal { return c.sum(LineItem.Subtotal) }

// SubtotalWithDiscounts is the sum of the row subtotals after subtotal-scoped discounts.
func (c *Cart) SubtotalWithDiscounts() decimal.Decimal { return c.sum(LineItem.SubtotalWithDiscounts) }

// TaxAmount is the tax charged on the whole cart.
func (c *Cart) TaxAmount() decimal.Decimal { return c.sum(LineItem.TaxAmount) }

// Total is the amount charged for the rows. Shipping is not included.
func (c *Cart) Total() decimal.Decimal { return c.sum(LineItem.Total) }

func (c *Cart) DiscountSubtotalPercentageAmount() decimal.Decimal {
	return c.sum(LineItem.DiscountSubtotalPercentageAmount)
}

func (c *Cart) DiscountSubtotalFixedAmount() decimal.Decimal {
	return c.sum(func(i LineItem) decimal.Decimal { return i.DiscountSubtotalFixedAmount })
}

func (c *Cart) DiscountTotalPercentageAmount() decimal.Decimal {
	return c.sum(LineItem.DiscountTotalPercentageAmount)
}

func (c *Cart) DiscountTotalFixedAmount() decimal.Decimal {
	return c.sum(func(i LineItem) decimal.Decimal { return i.DiscountTotalFixedAmount })
}

// DiscountSubtotalAmount sums every subtotal-scoped discount.
func (c *Cart) DiscountSubtotalAmount() decimal.Decimal { return c.sum(LineItem.DiscountSubtotalAmount) }

// DiscountTotalAmount sums every total-scoped discount.
func (c *Cart) DiscountTotalAmount() decimal.Decimal { return c.sum(LineItem.DiscountTotalAmount) }

// DiscountAmount sums every discount in the cart.
func (c *Cart) DiscountAmount() decimal.Decimal { return c.sum(LineItem.DiscountAmount) }

// TaxSummary aggregates tax per tax rule identifier, in order of first appearance. The returned
// rules are copies; changing them has no effect on the cart.
func (c *Cart) TaxSummary() *TaxRules {
	summary := &TaxRules{}
	for _, it := range c.items.All() {
		for _, tr := range it.TaxRulesWithAmounts() {
			if existing, ok := summary.Get(tr.ID); ok {
				existing.Amount = existing.Amount.Add(tr.Amount)
				summary.Put(tr.ID, existing)
				continue
			}
			summary.Put(tr.ID, tr)
		}
	}
	return summary
}
