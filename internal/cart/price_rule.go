package cart

import "github.com/shopspring/decimal"

// DiscountType selects how a price rule discounts the cart.
type DiscountType string

const (
	// DiscountSubtotalPercentage removes a percentage of every row subtotal.
	DiscountSubtotalPercentage DiscountType = "subtotal_percentage"
	// DiscountTotalPercentage removes a percentage of every row total.
	DiscountTotalPercentage DiscountType = "total_percentage"
	// DiscountSubtotalFixedAmount spreads a fixed amount over row subtotals.
	DiscountSubtotalFixedAmount DiscountType = "subtotal_fixed_amount"
	// DiscountTotalFixedAmount spreads a fixed amount over row totals.
	DiscountTotalFixedAmount DiscountType = "total_fixed_amount"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountSubtotalPercentage, DiscountTotalPercentage, DiscountSubtotalFixedAmount, DiscountTotalFixedAmount:
		return true
	default:
		return false
	}
}

// IsPercentage reports whether t is one of the percentage types.
func (t DiscountType) IsPercentage() bool {
	return t == DiscountSubtotalPercentage || t == DiscountTotalPercentage
}

// excludes returns the discount type that cannot coexist with t in a cart.
func (t DiscountType) excludes() (DiscountType, bool) {
	switch t {
	case DiscountSubtotalPercentage:
		return DiscountTotalPercentage, true
	case DiscountTotalPercentage:
		return DiscountSubtotalPercentage, true
	default:
		return "", false
	}
}

// Discount carries the configured value of a price rule.
type Discount struct {
	Percentage          decimal.Decimal `json:"percentage"`
	Fixed               decimal.Decimal `json:"fixed"`
	ApplyShippingAmount bool            `json:"applyShippingAmount"`
}

// PriceRule is a discount directive applied to the whole cart.
// DiscountAmount is computed by the cart and overwritten on recalculation.
type PriceRule struct {
	ID             string          `json:"id"`
	Name           string          `json:"name,omitempty"`
	DiscountType   DiscountType    `json:"discountType"`
	Discount       Discount        `json:"discount"`
	Combinable     bool            `json:"combinable"`
	FreeShipping   bool            `json:"freeShipping"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}
