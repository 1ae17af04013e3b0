// Package pricing computes per-line and order-level totals. All functions
// are pure and never fail for valid inputs.
//
// Rounding policy: each line's subtotal, tax amount, and tax-inclusive
// total are rounded half-up to 2 decimal places independently, and the
// order total is the exact sum of the already-rounded line totals. Stored
// line amounts therefore always sum to the stored order total.
package pricing

import "github.com/shopspring/decimal"

// CurrencyPlaces is the number of decimal places kept for money amounts.
const CurrencyPlaces = 2

// LineAmounts holds the computed money amounts for one order line.
type LineAmounts struct {
	Subtotal     decimal.Decimal
	TaxAmount    decimal.Decimal
	TotalWithTax decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// ComputeLine returns the subtotal (unitPrice x quantity), the tax amount
// (subtotal x taxRatePercent / 100), and the tax-inclusive line total, each
// rounded half-up to 2 decimal places.
func ComputeLine(unitPrice decimal.Decimal, quantity int, taxRatePercent decimal.Decimal) LineAmounts {
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(CurrencyPlaces)
	taxAmount := subtotal.Mul(taxRatePercent).Div(oneHundred).Round(CurrencyPlaces)
	return LineAmounts{
		Subtotal:     subtotal,
		TaxAmount:    taxAmount,
		TotalWithTax: subtotal.Add(taxAmount),
	}
}

// OrderTotal sums the tax-inclusive totals of the given lines. The inputs
// are already rounded, so the sum is exact.
func OrderTotal(lines []LineAmounts) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalWithTax)
	}
	return total
}
