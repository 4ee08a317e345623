package billing

import "github.com/shopspring/decimal"

// AdjustmentType selects how an adjustment value is interpreted.
type AdjustmentType string

const (
	// AdjustmentPercentage interprets the value as percent of the subtotal.
	AdjustmentPercentage AdjustmentType = "percentage"
	// AdjustmentFixed interprets the value as an absolute amount.
	AdjustmentFixed AdjustmentType = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Round2 rounds a monetary value to two decimal places. Every component that
// produces money goes through this single helper.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// AdjustmentSpec describes one of the three document-level adjustments
// (discount, fee, tax). Percentage values are always relative to the original
// subtotal, never to a running total, so the three adjustments are
// order-independent and do not compound.
type AdjustmentSpec struct {
	Value decimal.Decimal `json:"value"`
	Type  AdjustmentType  `json:"type"`
}

// Amount resolves the adjustment against the given subtotal.
func (a AdjustmentSpec) Amount(subtotal decimal.Decimal) decimal.Decimal {
	if a.Type == AdjustmentPercentage {
		return Round2(subtotal.Mul(a.Value).Div(hundred))
	}
	return Round2(a.Value)
}

// ItemAmount derives a line item's amount: quantity times rate plus the item's
// own tax contribution. Items carry their tax baked into the amount, so the
// subtotal already includes per-item taxes.
func ItemAmount(quantity, rate, tax decimal.Decimal, taxType AdjustmentType) decimal.Decimal {
	base := quantity.Mul(rate)
	if taxType == AdjustmentPercentage {
		return Round2(base.Add(base.Mul(tax).Div(hundred)))
	}
	return Round2(base.Add(tax))
}

// Subtotal reduces line items to their amount sum. An empty list yields zero.
func Subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

// Totals aggregates the resolved adjustment amounts and the final total.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Resolve computes the document total from a subtotal and the three
// adjustments. All three amounts are computed independently against the
// original subtotal; compounding (fee on top of discounted subtotal) is a
// different, incompatible semantics. No floor is applied: a discount larger
// than subtotal plus fee and tax yields a negative total, which is valid.
func Resolve(subtotal decimal.Decimal, discount, fee, tax AdjustmentSpec) Totals {
	discountAmount := discount.Amount(subtotal)
	feeAmount := fee.Amount(subtotal)
	taxAmount := tax.Amount(subtotal)
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		FeeAmount:      feeAmount,
		TaxAmount:      taxAmount,
		Total:          subtotal.Sub(discountAmount).Add(feeAmount).Add(taxAmount),
	}
}

// Compute is the full pipeline: aggregate line items, then resolve adjustments.
func Compute(items []LineItem, discount, fee, tax AdjustmentSpec) Totals {
	return Resolve(Subtotal(items), discount, fee, tax)
}
