package cart

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/common"
)

var hundred = decimal.NewFromInt(100)

// TaxRule is a named tax rate attached to a line item. Rate is expressed in percent.
// Amount is the tax the rule contributes to its line, filled in by LineItem.TaxRulesWithAmounts.
type TaxRule struct {
	ID     string          `json:"id"`
	Name   string          `json:"name,omitempty"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// LineItem is one row of the cart. Monetary results are derived on every call from
// quantity, unit price, tax rules and the discount accumulators.
type LineItem struct {
	RowID     string            `json:"rowId"`
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
	Quantity  decimal.Decimal   `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unitPrice"`
	TaxRules  []TaxRule         `json:"taxRules,omitempty"`

	DiscountSubtotalPercentage  decimal.Decimal `json:"discountSubtotalPercentage"`
	DiscountTotalPercentage     decimal.Decimal `json:"discountTotalPercentage"`
	DiscountSubtotalFixedAmount decimal.Decimal `json:"discountSubtotalFixedAmount"`
	DiscountTotalFixedAmount    decimal.Decimal `json:"discountTotalFixedAmount"`
}

// NewLineItem builds a row for product id. The row identifier is derived from id and options
// so the same product with the same options merges when added twice.
func NewLineItem(id, name string, quantity, unitPrice decimal.Decimal, options map[string]string, taxRules ...TaxRule) (LineItem, error) {
	if strings.TrimSpace(id) == "" {
		return LineItem{}, fmt.Errorf("line item id is required: %w", ErrInvalidLineItem)
	}
	if !quantity.IsPositive() {
		return LineItem{}, fmt.Errorf("quantity %s for %s: %w", quantity, id, ErrInvalidQuantity)
	}
	item := LineItem{
		RowID:     RowID(id, options),
		ID:        id,
		Name:      name,
		Options:   maps.Clone(options),
		Quantity:  quantity,
		UnitPrice: unitPrice,
		TaxRules:  slices.Clone(taxRules),
	}
	return item, nil
}

// RowID returns the deterministic row identifier for a product and its options.
func RowID(id string, options map[string]string) string {
	var b strings.Builder
	b.WriteString(id)
	for _, k := range slices.Sorted(maps.Keys(options)) {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(options[k])
	}
	return common.Sha256Hex(b.String())
}

// Subtotal is quantity times unit price, before any discount.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// DiscountSubtotalPercentageAmount is the money removed by the subtotal percentage.
func (i LineItem) DiscountSubtotalPercentageAmount() decimal.Decimal {
	return percentOf(i.Subtotal(), i.DiscountSubtotalPercentage)
}

// SubtotalWithDiscounts is the subtotal after subtotal-scoped discounts. Taxes apply to it.
func (i LineItem) SubtotalWithDiscounts() decimal.Decimal {
	return i.Subtotal().Sub(i.DiscountSubtotalPercentageAmount()).Sub(i.DiscountSubtotalFixedAmount)
}

// TaxRate is the sum of the rates of all tax rules.
func (i LineItem) TaxRate() decimal.Decimal {
	rate := decimal.Zero
	for _, tr := range i.TaxRules {
		rate = rate.Add(tr.Rate)
	}
	return rate
}

// TaxAmount is the tax charged on SubtotalWithDiscounts.
func (i LineItem) TaxAmount() decimal.Decimal {
	return percentOf(i.SubtotalWithDiscounts(), i.TaxRate())
}

// TaxRulesWithAmounts returns copies of the tax rules carrying each rule's share of TaxAmount.
func (i LineItem) TaxRulesWithAmounts() []TaxRule {
	base := i.SubtotalWithDiscounts()
	out := make([]TaxRule, len(i.TaxRules))
	for idx, tr := range i.TaxRules {
		tr.Amount = percentOf(base, tr.Rate)
		out[idx] = tr
	}
	return out
}

// TotalWithoutDiscounts is SubtotalWithDiscounts plus taxes, before total-scoped discounts.
func (i LineItem) TotalWithoutDiscounts() decimal.Decimal {
	return i.SubtotalWithDiscounts().Add(i.TaxAmount())
}

// DiscountTotalPercentageAmount is the money removed by the total percentage.
func (i LineItem) DiscountTotalPercentageAmount() decimal.Decimal {
	return percentOf(i.TotalWithoutDiscounts(), i.DiscountTotalPercentage)
}

// Total is the amount charged for the row.
func (i LineItem) Total() decimal.Decimal {
	return i.TotalWithoutDiscounts().Sub(i.DiscountTotalPercentageAmount()).Sub(i.DiscountTotalFixedAmount)
}

// DiscountSubtotalAmount sums both subtotal-scoped discounts.
func (i LineItem) DiscountSubtotalAmount() decimal.Decimal {
	return i.DiscountSubtotalPercentageAmount().Add(i.DiscountSubtotalFixedAmount)
}

// DiscountTotalAmount sums both total-scoped discounts.
func (i LineItem) DiscountTotalAmount() decimal.Decimal {
	return i.DiscountTotalPercentageAmount().Add(i.DiscountTotalFixedAmount)
}

// DiscountAmount is every discount applied to the row.
func (i LineItem) DiscountAmount() decimal.Decimal {
	return i.DiscountSubtotalAmount().Add(i.DiscountTotalAmount())
}

// Clone returns a deep copy, so mutations on the copy never reach the cart.
func (i LineItem) Clone() LineItem {
	i.Options = maps.Clone(i.Options)
	i.TaxRules = slices.Clone(i.TaxRules)
	return i
}

func percentOf(base, percentage decimal.Decimal) decimal.Decimal {
	if percentage.IsZero() {
		return decimal.Zero
	}
	return base.Mul(percentage).Div(hundred)
}
