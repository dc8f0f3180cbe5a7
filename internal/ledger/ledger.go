package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/pos-terminal/internal/money"
)

var (
	// ErrSettled is returned when a payment is added to a settled ledger.
	ErrSettled = errors.New("ledger: sale already settled")
	// ErrInvalidAmount is returned for zero or negative tenders.
	ErrInvalidAmount = errors.New("ledger: tendered amount must be positive")
	// ErrInsufficientCash is returned when a cash tender does not cover the balance.
	ErrInsufficientCash = errors.New("ledger: cash tender must cover the remaining balance")
	// ErrExceedsBalance is returned when a non-cash tender is larger than the balance.
	ErrExceedsBalance = errors.New("ledger: non-cash tender exceeds the remaining balance")
	// ErrUnknownMethod is returned by ParseMethod.
	ErrUnknownMethod = errors.New("ledger: unknown payment method")
	// ErrPaymentsRecorded is returned when the total is changed after payments.
	ErrPaymentsRecorded = errors.New("ledger: payments already recorded")
	// ErrNegativeTotal is returned when a ledger is opened for a negative total.
	ErrNegativeTotal = errors.New("ledger: total must not be negative")
)

// Method identifies a tender type.
type Method string

const (
	Debit    Method = "debit"
	Credit   Method = "credit"
	Transfer Method = "transfer"
	Cash     Method = "cash"
)

// Methods lists every supported tender type.
func Methods() []Method {
	return []Method{Debit, Credit, Transfer, Cash}
}

// ParseMethod normalises a method name.
func ParseMethod(value string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(value)))
	switch m {
	case Debit, Credit, Transfer, Cash:
		return m, nil
	default:
		return "", fmt.Errorf("%q: %w", value, ErrUnknownMethod)
	}
}

// IsCash reports whether change can be given for the method.
func (m Method) IsCash() bool { return m == Cash }

// State of the ledger.
type State string

const (
	Open    State = "open"
	Settled State = "settled"
)

// Payment is a recorded tender. Tendered equals Applied except for cash.
type Payment struct {
	Method   Method      `json:"method"`
	Applied  money.Money `json:"amount"`
	Tendered money.Money `json:"amount_tendered"`
}

// Change returns the change handed back for this payment.
func (p Payment) Change() money.Money {
	return money.Max(money.Zero, p.Tendered.Sub(p.Applied))
}

// Ledger accumulates the payments of a single sale.
type Ledger struct {
	total    money.Money
	paid     money.Money
	payments []Payment
}

// New opens a ledger for total, rounded to whole units.
func New(total money.Money) (*Ledger, error) {
	if total.IsNegative() {
		return nil, ErrNegativeTotal
	}
	return &Ledger{total: total.Round()}, nil
}

func (l *Ledger) Total() money.Money { return l.total }

// Paid returns Σ applied.
func (l *Ledger) Paid() money.Money { return l.paid }

// BalanceDue returns max(0, total − paid).
func (l *Ledger) BalanceDue() money.Money {
	return money.Max(money.Zero, l.total.Sub(l.paid))
}

func (l *Ledger) State() State {
	if l.BalanceDue().IsZero() {
		return Settled
	}
	return Open
}

// Payments returns a copy of the recorded payments.
func (l *Ledger) Payments() []Payment {
	out := make([]Payment, len(l.payments))
	copy(out, l.payments)
	return out
}

func (l *Ledger) Len() int { return len(l.payments) }

// AddPayment records a tender against the remaining balance. Cash must cover
// the whole balance and may exceed it; other methods may be partial but must
// not exceed it. Rejected tenders leave the ledger unchanged.
func (l *Ledger) AddPayment(method Method, tendered money.Money) (Payment, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return Payment{}, err
	}
	balance := l.BalanceDue()
	if balance.IsZero() {
		return Payment{}, ErrSettled
	}
	tendered = tendered.Round()
	if !tendered.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}

	p := Payment{Method: method}
	if method.IsCash() {
		if tendered.LessThan(balance) {
			return Payment{}, fmt.Errorf("tendered %s, balance %s: %w", tendered, balance, ErrInsufficientCash)
		}
		p.Applied = money.Min(tendered, balance)
		p.Tendered = tendered
	} else {
		if tendered.GreaterThan(balance) {
			return Payment{}, fmt.Errorf("tendered %s, balance %s: %w", tendered, balance, ErrExceedsBalance)
		}
		p.Applied = tendered
		p.Tendered = tendered
	}
	l.payments = append(l.payments, p)
	l.paid = l.paid.Add(p.Applied)
	return p, nil
}

// ChangeDue previews the change for a cash tender without recording it.
// A settled ledger accepts no further tender, so its preview is zero.
func (l *Ledger) ChangeDue(tendered money.Money) money.Money {
	if l.State() == Settled {
		return money.Zero
	}
	return money.Max(money.Zero, tendered.Sub(l.BalanceDue())).Round()
}

// TotalChangeOwed sums the change of every cash payment.
func (l *Ledger) TotalChangeOwed() money.Money {
	total := money.Zero
	for _, p := range l.payments {
		if p.Method.IsCash() {
			total = total.Add(p.Change())
		}
	}
	return total.Round()
}

// Reset re-opens the ledger for a new total. Only allowed while no payment
// has been recorded.
func (l *Ledger) Reset(total money.Money) error {
	if len(l.payments) > 0 {
		return ErrPaymentsRecorded
	}
	if total.IsNegative() {
		return ErrNegativeTotal
	}
	l.total = total.Round()
	l.paid = money.Zero
	return nil
}

// Clear drops every payment and sets the total to zero.
func (l *Ledger) Clear() {
	l.total = money.Zero
	l.paid = money.Zero
	l.payments = nil
}
