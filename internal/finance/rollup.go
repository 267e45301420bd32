// Package finance derives document totals from line items. All functions
// are pure; callers persist the results and never trust a stored total.
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the ISO alpha-3 code applied when a document does not
// specify one.
const DefaultCurrency = "INR"

// LineItem carries the inputs of one document line.
type LineItem struct {
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Totals is the roll-up over a document's lines. Amounts are fixed to two
// decimal places.
type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	// LineTotals holds each line's quantity x unit_price, index-aligned
	// with the input, so callers can persist them alongside the header.
	LineTotals []decimal.Decimal
}

// ValidationError reports a structurally invalid input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("finance: %s: %s", e.Field, e.Reason)
}

var hundred = decimal.NewFromInt(100)

// LineTotal computes quantity x unit_price for a single line.
func LineTotal(quantity int64, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, &ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	if unitPrice.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "unit_price", Reason: "must not be negative"}
	}
	return unitPrice.Mul(decimal.NewFromInt(quantity)).Round(2), nil
}

// Recalculate folds the lines into subtotal/tax/discount/total.
//
//	subtotal = sum(quantity x unit_price)
//	tax      = round(subtotal x taxPct / 100, 2)
//	discount = round(subtotal x discountPct / 100, 2)
//	total    = subtotal + tax - discount
//
// A discount that drives the total negative is rejected rather than
// clamped; business-rule violations are never silently adjusted.
func Recalculate(items []LineItem, taxPct, discountPct decimal.Decimal) (Totals, error) {
	if err := validatePercent("tax_percentage", taxPct); err != nil {
		return Totals{}, err
	}
	if err := validatePercent("discount_percentage", discountPct); err != nil {
		return Totals{}, err
	}

	subtotal := decimal.Zero
	lineTotals := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		total, err := LineTotal(item.Quantity, item.UnitPrice)
		if err != nil {
			return Totals{}, err
		}
		lineTotals = append(lineTotals, total)
		subtotal = subtotal.Add(total)
	}

	tax := subtotal.Mul(taxPct).Div(hundred).Round(2)
	discount := subtotal.Mul(discountPct).Div(hundred).Round(2)
	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		return Totals{}, &ValidationError{Field: "total_amount", Reason: "discount exceeds subtotal plus tax"}
	}

	return Totals{
		Subtotal:       subtotal.Round(2),
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    total.Round(2),
		LineTotals:     lineTotals,
	}, nil
}

// Balance derives the outstanding amount after payments.
func Balance(total, amountPaid decimal.Decimal) decimal.Decimal {
	return total.Sub(amountPaid).Round(2)
}

func validatePercent(field string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return &ValidationError{Field: field, Reason: "must be between 0 and 100"}
	}
	return nil
}
