package cart

import "errors"

var (
	// ErrDuplicateRule is returned when a price rule with the same identifier is already applied.
	ErrDuplicateRule = errors.New("price rule already applied to cart")
	// ErrNotCombinable is returned when the cart already holds a price rule that cannot be combined.
	ErrNotCombinable = errors.New("cart has a non-combinable price rule")
	// ErrMutuallyExclusiveDiscount is returned when mixing subtotal and total percentage discounts.
	ErrMutuallyExclusiveDiscount = errors.New("subtotal and total percentage discounts are mutually exclusive")
	// ErrNotFound indicates the referenced row is not part of the cart.
	ErrNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned when a line item is built with a non-positive quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidLineItem is returned for line items without a product identifier.
	ErrInvalidLineItem = errors.New("invalid line item")
	// ErrInvalidPriceRule is returned for price rules with an unknown discount type or missing id.
	ErrInvalidPriceRule = errors.New("invalid price rule")
)
