package discount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pos-terminal/internal/cart"
	"github.com/noah-isme/pos-terminal/internal/money"
)

// ErrUnknownKind is returned when a discount kind is not recognised.
var ErrUnknownKind = errors.New("discount: unknown kind")

// Kind selects how Value is interpreted.
type Kind string

const (
	// FixedAmount subtracts Value currency units, capped at the subtotal.
	FixedAmount Kind = "fixed_amount"
	// Percentage subtracts Value percent of the subtotal, Value clamped to [0,100].
	Percentage Kind = "percentage"
)

var hundred = decimal.NewFromInt(100)

// ParseKind accepts the canonical names plus the short aliases used by the UI.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "fixed_amount", "fixed", "amount":
		return FixedAmount, nil
	case "percentage", "percent", "pct":
		return Percentage, nil
	default:
		return "", ErrUnknownKind
	}
}

// Spec is an order-level discount request.
type Spec struct {
	Kind  Kind            `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Validate ensures the kind is known.
func (s Spec) Validate() error {
	switch s.Kind {
	case FixedAmount, Percentage:
	default:
		return ErrUnknownKind
	}
	if err := money.CheckRange(s.Value); err != nil {
		return fmt.Errorf("discount value: %w", err)
	}
	return nil
}

// Apply returns the effective discount for subtotal. The result is a whole
// amount in [0, subtotal].
func Apply(subtotal money.Money, spec Spec) money.Money {
	if !spec.Value.IsPositive() || !subtotal.IsPositive() {
		return money.Zero
	}
	var effective money.Money
	switch spec.Kind {
	case Percentage:
		pct := decimal.Min(spec.Value, hundred)
		effective = subtotal.Percent(pct).Round()
	case FixedAmount:
		effective = money.FromDecimal(spec.Value).Round()
	default:
		return money.Zero
	}
	if effective.GreaterThan(subtotal) {
		effective = subtotal
	}
	if effective.IsNegative() {
		return money.Zero
	}
	return effective
}

// Apportion spreads effective over the lines as a uniform percentage
// reduction. Each line is rounded independently, so the sum may differ from
// effective by up to one unit per line.
func Apportion(lines []cart.LineItem, effective, subtotal money.Money) []money.Money {
	out := make([]money.Money, len(lines))
	for i := range out {
		out[i] = money.Zero
	}
	if !effective.IsPositive() || !subtotal.IsPositive() {
		return out
	}
	for i, l := range lines {
		share, err := l.Amount().MulRatio(effective, subtotal)
		if err != nil {
			continue
		}
		out[i] = share.Round()
	}
	return out
}
