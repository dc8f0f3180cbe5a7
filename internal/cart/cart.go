package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/pos-terminal/internal/money"
)

var (
	// ErrOutOfStock is returned when a product with no available stock is added.
	ErrOutOfStock = errors.New("cart: product out of stock")
	// ErrStockExceeded is returned when a quantity change would exceed available stock.
	ErrStockExceeded = errors.New("cart: quantity exceeds available stock")
	// ErrLineNotFound indicates the product is not in the cart.
	ErrLineNotFound = errors.New("cart: line not found")
	// ErrInvalidInput is returned when the provided product is invalid.
	ErrInvalidInput = errors.New("cart: invalid input")
)

// Product is the catalog snapshot used when a line is created.
type Product struct {
	ID        string
	Name      string
	UnitPrice money.Money
}

// LineItem is a single product line. UnitPrice is captured when the line is
// created and never changes afterwards.
type LineItem struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	UnitPrice   money.Money `json:"unit_price"`
	Quantity    int         `json:"quantity"`
}

// Amount returns unit price times quantity, unrounded.
func (l LineItem) Amount() money.Money {
	return l.UnitPrice.MulInt(int64(l.Quantity))
}

// Cart holds the lines of the sale in insertion order. A product appears at
// most once.
type Cart struct {
	lines []LineItem
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddItem inserts the product with quantity 1 or increments an existing line.
// availableStock is the ceiling reported by the inventory service at call time.
func (c *Cart) AddItem(p Product, availableStock int) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("product id required: %w", ErrInvalidInput)
	}
	if p.UnitPrice.IsNegative() {
		return fmt.Errorf("negative unit price: %w", ErrInvalidInput)
	}
	if availableStock <= 0 {
		return ErrOutOfStock
	}
	if idx := c.index(p.ID); idx >= 0 {
		next := c.lines[idx].Quantity + 1
		if next > availableStock {
			return fmt.Errorf("%s: %d > %d: %w", p.ID, next, availableStock, ErrStockExceeded)
		}
		c.lines[idx].Quantity = next
		return nil
	}
	c.lines = append(c.lines, LineItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   p.UnitPrice,
		Quantity:    1,
	})
	return nil
}

// ChangeQuantity applies delta to the line. A resulting quantity of zero or
// less removes the line; a quantity above availableStock is rejected.
func (c *Cart) ChangeQuantity(productID string, delta, availableStock int) error {
	idx := c.index(productID)
	if idx < 0 {
		return ErrLineNotFound
	}
	cur := c.lines[idx].Quantity
	// compare against headroom so extreme deltas cannot wrap
	if delta > 0 && delta > availableStock-cur {
		return fmt.Errorf("%s: %d + %d > %d: %w", productID, cur, delta, availableStock, ErrStockExceeded)
	}
	if delta <= -cur {
		c.removeAt(idx)
		return nil
	}
	c.lines[idx].Quantity = cur + delta
	return nil
}

// Remove deletes the line for productID.
func (c *Cart) Remove(productID string) error {
	idx := c.index(productID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.removeAt(idx)
	return nil
}

// Line returns the line for productID.
func (c *Cart) Line(productID string) (LineItem, bool) {
	idx := c.index(productID)
	if idx < 0 {
		return LineItem{}, false
	}
	return c.lines[idx], true
}

// Lines returns a copy of the lines in display order.
func (c *Cart) Lines() []LineItem {
	out := make([]LineItem, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Subtotal returns Σ(unit price × quantity) rounded to whole units.
func (c *Cart) Subtotal() money.Money {
	total := money.Zero
	for _, l := range c.lines {
		total = total.Add(l.Amount())
	}
	return total.Round()
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) index(productID string) int {
	for i, l := range c.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}
