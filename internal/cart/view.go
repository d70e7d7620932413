package cart

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/format"
)

type amountView struct {
	Value   decimal.Decimal `json:"value"`
	Display string          `json:"display"`
}

func newAmount(d decimal.Decimal, f format.Options) amountView {
	return amountView{Value: d, Display: f.Format(d)}
}

type taxView struct {
	TaxRule
	Display string `json:"display"`
}

type itemView struct {
	LineItem
	Subtotal              amountView `json:"subtotal"`
	SubtotalWithDiscounts amountView `json:"subtotalWithDiscounts"`
	TaxAmount             amountView `json:"taxAmount"`
	DiscountAmount        amountView `json:"discountAmount"`
	Total                 amountView `json:"total"`
}

type totalsView struct {
	Quantity                         decimal.Decimal `json:"quantity"`
	Subtotal                         amountView      `json:"subtotal"`
	SubtotalWithDiscounts            amountView      `json:"subtotalWithDiscounts"`
	TaxAmount                        amountView      `json:"taxAmount"`
	DiscountSubtotalPercentageAmount amountView      `json:"discountSubtotalPercentageAmount"`
	DiscountSubtotalFixedAmount      amountView      `json:"discountSubtotalFixedAmount"`
	DiscountTotalPercentageAmount    amountView      `json:"discountTotalPercentageAmount"`
	DiscountTotalFixedAmount         amountView      `json:"discountTotalFixedAmount"`
	DiscountAmount                   amountView      `json:"discountAmount"`
	Shipping                         amountView      `json:"shipping"`
	Total                            amountView      `json:"total"`
}

type cartView struct {
	Instance             string      `json:"instance"`
	Count                int         `json:"count"`
	Items                []itemView  `json:"items"`
	PriceRules           []PriceRule `json:"priceRules"`
	Taxes                []taxView   `json:"taxes"`
	HasNonCombinableRule bool        `json:"hasNonCombinableRule"`
	HasFreeShipping      bool        `json:"hasFreeShipping"`
	HasShipping          bool        `json:"hasShipping"`
	Totals               totalsView  `json:"totals"`
}

func newCartView(c *Cart, f format.Options) cartView {
	items := make([]itemView, 0, c.Count())
	for _, it := range c.Items().All() {
		items = append(items, itemView{
			LineItem:              it,
			Subtotal:              newAmount(it.Subtotal(), f),
			SubtotalWithDiscounts: newAmount(it.SubtotalWithDiscounts(), f),
			TaxAmount:             newAmount(it.TaxAmount(), f),
			DiscountAmount:        newAmount(it.DiscountAmount(), f),
			Total:                 newAmount(it.Total(), f),
		})
	}
	summary := c.TaxSummary()
	taxes := make([]taxView, 0, summary.Len())
	for _, tr := range summary.All() {
		taxes = append(taxes, taxView{TaxRule: tr, Display: f.Format(tr.Amount)})
	}
	rules := c.PriceRules().Values()
	if rules == nil {
		rules = []PriceRule{}
	}

	shipping := decimal.Zero
	if c.HasShipping() && !c.HasFreeShipping() {
		shipping = c.ShippingAmount()
	}
	return cartView{
		Instance:             c.Instance(),
		Count:                c.Count(),
		Items:                items,
		PriceRules:           rules,
		Taxes:                taxes,
		HasNonCombinableRule: c.HasNonCombinableRule(),
		HasFreeShipping:      c.HasFreeShipping(),
		HasShipping:          c.HasShipping(),
		Totals: totalsView{
			Quantity:                         c.Quantity(),
			Subtotal:                         newAmount(c.Subtotal(), f),
			SubtotalWithDiscounts:            newAmount(c.SubtotalWithDiscounts(), f),
			TaxAmount:                        newAmount(c.TaxAmount(), f),
			DiscountSubtotalPercentageAmount: newAmount(c.DiscountSubtotalPercentageAmount(), f),
			DiscountSubtotalFixedAmount:      newAmount(c.DiscountSubtotalFixedAmount(), f),
			DiscountTotalPercentageAmount:    newAmount(c.DiscountTotalPercentageAmount(), f),
			DiscountTotalFixedAmount:         newAmount(c.DiscountTotalFixedAmount(), f),
			DiscountAmount:                   newAmount(c.DiscountAmount(), f),
			Shipping:                         newAmount(shipping, f),
			Total:                            newAmount(c.Total(), f),
		},
	}
}
