package finance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRecalculate(t *testing.T) {
	items := []LineItem{
		{Quantity: 2, UnitPrice: dec("500")},
		{Quantity: 1, UnitPrice: dec("300")},
	}
	totals, err := Recalculate(items, dec("10"), dec("5"))
	require.NoError(t, err)
	require.True(t, totals.Subtotal.Equal(dec("1300")), "subtotal %s", totals.Subtotal)
	require.True(t, totals.TaxAmount.Equal(dec("130.00")), "tax %s", totals.TaxAmount)
	require.True(t, totals.DiscountAmount.Equal(dec("65.00")), "discount %s", totals.DiscountAmount)
	require.True(t, totals.TotalAmount.Equal(dec("1365.00")), "total %s", totals.TotalAmount)
	require.Len(t, totals.LineTotals, 2)
	require.True(t, totals.LineTotals[0].Equal(dec("1000")))
	require.True(t, totals.LineTotals[1].Equal(dec("300")))
}

func TestRecalculateIdentity(t *testing.T) {
	items := []LineItem{
		{Quantity: 3, UnitPrice: dec("19.99")},
		{Quantity: 7, UnitPrice: dec("4.25")},
	}
	totals, err := Recalculate(items, dec("18"), dec("2.5"))
	require.NoError(t, err)

	sum := decimal.Zero
	for _, lt := range totals.LineTotals {
		sum = sum.Add(lt)
	}
	require.True(t, totals.Subtotal.Equal(sum))
	require.True(t, totals.TotalAmount.Equal(totals.Subtotal.Add(totals.TaxAmount).Sub(totals.DiscountAmount)))
}

func TestRecalculateRounding(t *testing.T) {
	// 3 x 33.33 = 99.99; 12.5% tax = 12.49875 -> 12.50
	totals, err := Recalculate([]LineItem{{Quantity: 3, UnitPrice: dec("33.33")}}, dec("12.5"), dec("0"))
	require.NoError(t, err)
	require.True(t, totals.TaxAmount.Equal(dec("12.50")), "tax %s", totals.TaxAmount)
}

func TestRecalculateRejectsInvalidInput(t *testing.T) {
	var verr *ValidationError

	_, err := Recalculate([]LineItem{{Quantity: 0, UnitPrice: dec("10")}}, dec("0"), dec("0"))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "quantity", verr.Field)

	_, err = Recalculate([]LineItem{{Quantity: 1, UnitPrice: dec("-1")}}, dec("0"), dec("0"))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "unit_price", verr.Field)

	_, err = Recalculate(nil, dec("101"), dec("0"))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "tax_percentage", verr.Field)

	_, err = Recalculate(nil, dec("0"), dec("-3"))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "discount_percentage", verr.Field)
}

func TestRecalculateFullDiscount(t *testing.T) {
	// A 100% discount with no tax reaches exactly zero, which is allowed.
	totals, err := Recalculate([]LineItem{{Quantity: 1, UnitPrice: dec("50")}}, dec("0"), dec("100"))
	require.NoError(t, err)
	require.True(t, totals.TotalAmount.IsZero())

	// With tax on top the discount can never push the total below zero
	// while percentages are bounded to [0,100].
	totals, err = Recalculate([]LineItem{{Quantity: 1, UnitPrice: dec("50")}}, dec("1"), dec("100"))
	require.NoError(t, err)
	require.True(t, totals.TotalAmount.Equal(dec("0.50")))
}

func TestBalance(t *testing.T) {
	require.True(t, Balance(dec("1365.00"), dec("365.00")).Equal(dec("1000.00")))
	require.True(t, Balance(dec("100"), dec("0")).Equal(dec("100.00")))
}

func TestEmptyLines(t *testing.T) {
	totals, err := Recalculate(nil, dec("10"), dec("5"))
	require.NoError(t, err)
	require.True(t, totals.Subtotal.IsZero())
	require.True(t, totals.TotalAmount.IsZero())
}
