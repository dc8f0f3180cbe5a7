package discount_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/cart"
	"github.com/noah-isme/pos-terminal/internal/discount"
	"github.com/noah-isme/pos-terminal/internal/money"
)

func pct(v int64) discount.Spec {
	return discount.Spec{Kind: discount.Percentage, Value: decimal.NewFromInt(v)}
}

func fixed(v string) discount.Spec {
	return discount.Spec{Kind: discount.FixedAmount, Value: decimal.RequireFromString(v)}
}

func TestApplyPercentage(t *testing.T) {
	got := discount.Apply(money.New(3000), pct(10))
	require.True(t, got.Equal(money.New(300)))
	require.True(t, money.New(3000).Sub(got).Equal(money.New(2700)))
}

func TestApplyPercentageClampedAt100(t *testing.T) {
	got := discount.Apply(money.New(3000), pct(150))
	require.True(t, got.Equal(money.New(3000)))
}

func TestApplyFixedCappedAtSubtotal(t *testing.T) {
	require.True(t, discount.Apply(money.New(1000), fixed("100")).Equal(money.New(100)))
	require.True(t, discount.Apply(money.New(1000), fixed("5000")).Equal(money.New(1000)))
	require.True(t, discount.Apply(money.New(1000), fixed("99.5")).Equal(money.New(100)))
}

func TestApplyNonPositiveInputs(t *testing.T) {
	require.True(t, discount.Apply(money.New(1000), fixed("0")).IsZero())
	require.True(t, discount.Apply(money.New(1000), fixed("-10")).IsZero())
	require.True(t, discount.Apply(money.New(1000), pct(-5)).IsZero())
	require.True(t, discount.Apply(money.Zero, pct(10)).IsZero())
}

func TestApplyAlwaysWithinBounds(t *testing.T) {
	subtotals := []int64{0, 1, 7, 999, 1000, 12345}
	specs := []discount.Spec{pct(0), pct(1), pct(33), pct(100), pct(250), fixed("0"), fixed("1"), fixed("500"), fixed("100000")}
	for _, st := range subtotals {
		for _, spec := range specs {
			subtotal := money.New(st)
			got := discount.Apply(subtotal, spec)
			require.False(t, got.IsNegative(), "subtotal %d spec %+v", st, spec)
			require.False(t, got.GreaterThan(subtotal), "subtotal %d spec %+v", st, spec)
		}
	}
}

func TestApportionExactSplit(t *testing.T) {
	lines := []cart.LineItem{
		{ProductID: "a", UnitPrice: money.New(500), Quantity: 1},
		{ProductID: "b", UnitPrice: money.New(500), Quantity: 1},
	}
	effective := discount.Apply(money.New(1000), fixed("100"))
	shares := discount.Apportion(lines, effective, money.New(1000))
	require.Len(t, shares, 2)
	require.True(t, shares[0].Equal(money.New(50)))
	require.True(t, shares[1].Equal(money.New(50)))
	require.True(t, money.Sum(shares...).Equal(effective))
}

func TestApportionSlackBoundedByLineCount(t *testing.T) {
	lines := []cart.LineItem{
		{ProductID: "a", UnitPrice: money.New(333), Quantity: 1},
		{ProductID: "b", UnitPrice: money.New(333), Quantity: 2},
		{ProductID: "c", UnitPrice: money.New(101), Quantity: 3},
		{ProductID: "d", UnitPrice: money.MustParse("12.5"), Quantity: 7},
	}
	subtotal := money.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Amount())
	}
	subtotal = subtotal.Round()
	for _, spec := range []discount.Spec{pct(7), pct(13), pct(50), fixed("1"), fixed("77"), fixed("1000")} {
		t.Run(fmt.Sprintf("%s-%s", spec.Kind, spec.Value), func(t *testing.T) {
			effective := discount.Apply(subtotal, spec)
			shares := discount.Apportion(lines, effective, subtotal)
			diff := money.Sum(shares...).Sub(effective)
			if diff.IsNegative() {
				diff = money.Zero.Sub(diff)
			}
			require.False(t, diff.GreaterThan(money.New(int64(len(lines)))), "slack %s", diff)
		})
	}
}

func TestApportionSkippedWithoutDiscount(t *testing.T) {
	lines := []cart.LineItem{{ProductID: "a", UnitPrice: money.New(500), Quantity: 2}}
	shares := discount.Apportion(lines, money.Zero, money.New(1000))
	require.True(t, shares[0].IsZero())

	shares = discount.Apportion(lines, money.New(10), money.Zero)
	require.True(t, shares[0].IsZero())
}

func TestParseKind(t *testing.T) {
	k, err := discount.ParseKind("Percent")
	require.NoError(t, err)
	require.Equal(t, discount.Percentage, k)
	k, err = discount.ParseKind("fixed")
	require.NoError(t, err)
	require.Equal(t, discount.FixedAmount, k)
	_, err = discount.ParseKind("bogo")
	require.ErrorIs(t, err, discount.ErrUnknownKind)
	require.ErrorIs(t, discount.Spec{Kind: "bogo"}.Validate(), discount.ErrUnknownKind)
}

func TestValidateBoundsValue(t *testing.T) {
	tiny := decimal.New(1, -30000000)
	huge := decimal.New(1, 30000000)
	require.ErrorIs(t, discount.Spec{Kind: discount.Percentage, Value: tiny}.Validate(), money.ErrOutOfRange)
	require.ErrorIs(t, discount.Spec{Kind: discount.FixedAmount, Value: huge}.Validate(), money.ErrOutOfRange)
	require.NoError(t, discount.Spec{Kind: discount.Percentage, Value: decimal.RequireFromString("12.5")}.Validate())
}
