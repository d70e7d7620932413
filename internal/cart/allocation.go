package cart

import (
	"sort"

	"github.com/shopspring/decimal"
)

// scope is the part of a row a fixed discount is taken from.
type scope int

const (
	scopeSubtotal scope = iota
	scopeTotal
)

func (s scope) String() string {
	if s == scopeTotal {
		return "total"
	}
	return "subtotal"
}

// available is what the row can still absorb in this scope.
func (s scope) available(item LineItem) decimal.Decimal {
	if s == scopeTotal {
		return item.Total()
	}
	return item.SubtotalWithDiscounts()
}

func (s scope) accrue(item LineItem, amount decimal.Decimal) LineItem {
	if s == scopeTotal {
		item.DiscountTotalFixedAmount = item.DiscountTotalFixedAmount.Add(amount)
		return item
	}
	item.DiscountSubtotalFixedAmount = item.DiscountSubtotalFixedAmount.Add(amount)
	return item
}

// allocateFixed plans how amount is spread across items. Rows are grouped by aggregate tax
// rate, highest rate first, and inside a group the row with the least available amount goes
// first. Each row absorbs up to its available amount until nothing remains. The plan maps row
// identifiers to the amount each absorbs; applied is the sum of the plan, which is less than
// amount when the cart cannot absorb all of it.
func allocateFixed(items *LineItems, amount decimal.Decimal, sc scope) (plan map[string]decimal.Decimal, applied decimal.Decimal) {
	plan = make(map[string]decimal.Decimal)
	if !amount.IsPositive() || items.Len() == 0 {
		return plan, decimal.Zero
	}

	groups := items.GroupBy(func(it LineItem) string { return it.TaxRate().String() })
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Values[0].TaxRate().GreaterThan(groups[j].Values[0].TaxRate())
	})

	remaining := amount
walk:
	for _, g := range groups {
		rows := append([]LineItem(nil), g.Values...)
		sort.SliceStable(rows, func(i, j int) bool {
			return sc.available(rows[i]).LessThan(sc.available(rows[j]))
		})
		for _, row := range rows {
			avail := sc.available(row)
			if !avail.IsPositive() {
				continue
			}
			if avail.GreaterThanOrEqual(remaining) {
				plan[row.RowID] = remaining
				remaining = decimal.Zero
				break walk
			}
			plan[row.RowID] = avail
			remaining = remaining.Sub(avail)
		}
	}
	return plan, amount.Sub(remaining)
}
