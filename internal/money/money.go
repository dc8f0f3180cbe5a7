package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned by ratio operations with a zero denominator.
var ErrDivisionByZero = errors.New("money: division by zero")

// ErrOutOfRange is returned for amounts finer than MaxScale decimals or
// larger in magnitude than 10^15.
var ErrOutOfRange = errors.New("money: amount out of range")

// MaxScale is the finest number of decimal places an amount may carry.
const MaxScale = 6

const maxExponent = 15

var (
	half         = decimal.New(5, -1)
	maxMagnitude = decimal.New(1, maxExponent)
)

// CheckRange rejects decimals whose scale or magnitude would make
// arithmetic on them unbounded. The exponent is checked before any
// comparison so huge exponents are never expanded.
func CheckRange(d decimal.Decimal) error {
	if exp := d.Exponent(); exp < -MaxScale || exp > maxExponent {
		return ErrOutOfRange
	}
	if d.Abs().GreaterThan(maxMagnitude) {
		return ErrOutOfRange
	}
	return nil
}

// Money is an exact decimal monetary amount. The zero value is zero money.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// New returns a whole-unit amount.
func New(units int64) Money {
	return Money{d: decimal.NewFromInt(units)}
}

// FromDecimal wraps an existing decimal value.
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

// Parse reads a decimal string such as "1500" or "1500.50".
func Parse(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Money{}, errors.New("money: empty amount")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", value, err)
	}
	if err := CheckRange(d); err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", value, err)
	}
	return Money{d: d}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(value string) Money {
	m, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// MulInt multiplies by an integer quantity.
func (m Money) MulInt(n int64) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(n))}
}

// MulRatio returns m × num / den. The numerator is multiplied before dividing
// so the only inexact step is the final division.
func (m Money) MulRatio(num, den Money) (Money, error) {
	if den.d.IsZero() {
		return Money{}, ErrDivisionByZero
	}
	return Money{d: m.d.Mul(num.d).Div(den.d)}, nil
}

// Percent returns pct percent of m, unrounded.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{d: m.d.Mul(pct).Div(decimal.NewFromInt(100))}
}

// Round rounds half-up to a whole currency unit: floor(m + 0.5).
func (m Money) Round() Money {
	return Money{d: m.d.Add(half).Floor()}
}

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

// String renders the amount without trailing zeros, e.g. "2700".
func (m Money) String() string { return m.d.String() }

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds all values.
func Sum(values ...Money) Money {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.d.String() + `"`), nil
}

// UnmarshalJSON accepts quoted decimal strings and bare JSON numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Zero
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
