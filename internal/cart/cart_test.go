package cart_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/cart"
	"github.com/noah-isme/pos-terminal/internal/money"
)

var (
	croissant = cart.Product{ID: "p-croissant", Name: "Croissant", UnitPrice: money.New(1000)}
	espresso  = cart.Product{ID: "p-espresso", Name: "Espresso", UnitPrice: money.MustParse("1250.50")}
)

func TestAddItemInsertsAndIncrements(t *testing.T) {
	c := cart.New()
	require.NoError(t, c.AddItem(croissant, 5))
	require.NoError(t, c.AddItem(croissant, 5))
	require.NoError(t, c.AddItem(croissant, 5))
	require.Equal(t, 1, c.Len())

	line, ok := c.Line(croissant.ID)
	require.True(t, ok)
	require.Equal(t, 3, line.Quantity)
	require.True(t, c.Subtotal().Equal(money.New(3000)))
}

func TestAddItemBlockedWithoutStock(t *testing.T) {
	c := cart.New()
	require.ErrorIs(t, c.AddItem(croissant, 0), cart.ErrOutOfStock)
	require.True(t, c.IsEmpty())

	require.NoError(t, c.AddItem(croissant, 1))
	require.ErrorIs(t, c.AddItem(croissant, 1), cart.ErrStockExceeded)
	line, _ := c.Line(croissant.ID)
	require.Equal(t, 1, line.Quantity)
}

func TestUnitPriceCapturedAtAddTime(t *testing.T) {
	c := cart.New()
	require.NoError(t, c.AddItem(croissant, 10))

	repriced := croissant
	repriced.UnitPrice = money.New(1500)
	require.NoError(t, c.AddItem(repriced, 10))

	line, _ := c.Line(croissant.ID)
	require.Equal(t, 2, line.Quantity)
	require.True(t, line.UnitPrice.Equal(money.New(1000)))
}

func TestChangeQuantity(t *testing.T) {
	t.Run("rejects increment beyond stock", func(t *testing.T) {
		c := cart.New()
		require.NoError(t, c.AddItem(croissant, 2))
		require.NoError(t, c.AddItem(croissant, 2))
		require.ErrorIs(t, c.ChangeQuantity(croissant.ID, 1, 2), cart.ErrStockExceeded)
		line, _ := c.Line(croissant.ID)
		require.Equal(t, 2, line.Quantity)
	})

	t.Run("removes line at zero", func(t *testing.T) {
		c := cart.New()
		require.NoError(t, c.AddItem(croissant, 2))
		require.NoError(t, c.AddItem(espresso, 2))
		require.NoError(t, c.ChangeQuantity(croissant.ID, -1, 2))
		require.Equal(t, 1, c.Len())
		_, ok := c.Line(croissant.ID)
		require.False(t, ok)
		require.Equal(t, espresso.ID, c.Lines()[0].ProductID)
	})

	t.Run("large negative delta removes line", func(t *testing.T) {
		c := cart.New()
		require.NoError(t, c.AddItem(croissant, 2))
		require.NoError(t, c.ChangeQuantity(croissant.ID, -10, 2))
		require.True(t, c.IsEmpty())
	})

	t.Run("unknown line", func(t *testing.T) {
		c := cart.New()
		require.ErrorIs(t, c.ChangeQuantity("missing", 1, 5), cart.ErrLineNotFound)
	})

	t.Run("extreme positive delta does not wrap", func(t *testing.T) {
		c := cart.New()
		require.NoError(t, c.AddItem(croissant, 5))
		require.ErrorIs(t, c.ChangeQuantity(croissant.ID, math.MaxInt, 5), cart.ErrStockExceeded)
		line, ok := c.Line(croissant.ID)
		require.True(t, ok)
		require.Equal(t, 1, line.Quantity)
	})

	t.Run("extreme negative delta removes line", func(t *testing.T) {
		c := cart.New()
		require.NoError(t, c.AddItem(croissant, 5))
		require.NoError(t, c.ChangeQuantity(croissant.ID, math.MinInt, 5))
		require.True(t, c.IsEmpty())
	})

	t.Run("updates within stock", func(t *testing.T) {
		c := cart.New()
		require.NoError(t, c.AddItem(espresso, 10))
		require.NoError(t, c.ChangeQuantity(espresso.ID, 3, 10))
		line, _ := c.Line(espresso.ID)
		require.Equal(t, 4, line.Quantity)
	})
}

func TestSubtotalMatchesLineSum(t *testing.T) {
	c := cart.New()
	require.NoError(t, c.AddItem(croissant, 10))
	require.NoError(t, c.AddItem(espresso, 10))
	require.NoError(t, c.ChangeQuantity(espresso.ID, 2, 10))
	require.NoError(t, c.ChangeQuantity(croissant.ID, 1, 10))

	expected := money.Zero
	for _, l := range c.Lines() {
		expected = expected.Add(l.UnitPrice.MulInt(int64(l.Quantity)))
	}
	// 2×1000 + 3×1250.50 = 5751.50 → 5752
	require.True(t, c.Subtotal().Equal(expected.Round()))
	require.True(t, c.Subtotal().Equal(money.New(5752)))
}

func TestLinesReturnsCopy(t *testing.T) {
	c := cart.New()
	require.NoError(t, c.AddItem(croissant, 3))
	lines := c.Lines()
	lines[0].Quantity = 99
	line, _ := c.Line(croissant.ID)
	require.Equal(t, 1, line.Quantity)
}

func TestAddItemValidatesProduct(t *testing.T) {
	c := cart.New()
	require.ErrorIs(t, c.AddItem(cart.Product{UnitPrice: money.New(1)}, 3), cart.ErrInvalidInput)
	require.ErrorIs(t, c.AddItem(cart.Product{ID: "x", UnitPrice: money.New(-1)}, 3), cart.ErrInvalidInput)
}

func TestRemoveAndClear(t *testing.T) {
	c := cart.New()
	require.NoError(t, c.AddItem(croissant, 3))
	require.NoError(t, c.AddItem(espresso, 3))
	require.NoError(t, c.Remove(croissant.ID))
	require.ErrorIs(t, c.Remove(croissant.ID), cart.ErrLineNotFound)
	c.Clear()
	require.True(t, c.IsEmpty())
	require.True(t, c.Subtotal().IsZero())
}
