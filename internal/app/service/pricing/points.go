package pricing

import "github.com/dogparkjp/paygate/pkg/types"

// ApplyPoints distributes a point discount across line items. The request is
// clamped to [0, subtotal], then each line's unit price is reduced by its
// proportional share of the remaining discount (integer floor), walking items
// in order until the discount is exhausted or items run out. No unit amount
// ever goes negative. Returns the effective discount actually applied and
// the adjusted items.
func ApplyPoints(items []types.LineItem, pointsUse int64) (int64, []types.LineItem) {
	var subtotal int64
	for _, li := range items {
		subtotal += li.Total()
	}
	if subtotal <= 0 || pointsUse <= 0 {
		return 0, items
	}

	clamped := pointsUse
	if clamped > subtotal {
		clamped = subtotal
	}

	remaining := clamped
	restSubtotal := subtotal
	for i := range items {
		if remaining <= 0 || restSubtotal <= 0 {
			break
		}
		lineTotal := items[i].Total()
		share := remaining * lineTotal / restSubtotal
		if share > remaining {
			share = remaining
		}
		unitReduction := share / items[i].Quantity
		if unitReduction > items[i].UnitAmount {
			unitReduction = items[i].UnitAmount
		}
		items[i].UnitAmount -= unitReduction
		remaining -= unitReduction * items[i].Quantity
		restSubtotal -= lineTotal
	}
	return clamped - remaining, items
}
