package settlement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/pos-terminal/internal/cart"
	"github.com/noah-isme/pos-terminal/internal/discount"
	"github.com/noah-isme/pos-terminal/internal/ledger"
	"github.com/noah-isme/pos-terminal/internal/money"
)

var (
	// ErrSaleLocked is returned when the cart or discount is edited after a payment.
	ErrSaleLocked = errors.New("settlement: sale has payments, cart and discount are locked")
	// ErrMethodNotAllowed is returned for tenders the channel does not accept.
	ErrMethodNotAllowed = errors.New("settlement: payment method not allowed on this channel")
	// ErrSubmissionInFlight is returned while a submission for the sale is outstanding.
	ErrSubmissionInFlight = errors.New("settlement: submission already in progress")
)

// Totals is the derived view of a sale.
type Totals struct {
	Subtotal   money.Money  `json:"subtotal"`
	Discount   money.Money  `json:"discount"`
	Total      money.Money  `json:"total"`
	Paid       money.Money  `json:"paid"`
	BalanceDue money.Money  `json:"balance_due"`
	ChangeOwed money.Money  `json:"change_owed"`
	State      ledger.State `json:"state"`
}

// Sale is the in-progress sale of one terminal: cart, optional discount,
// payment ledger and customer. It is not safe for concurrent use.
type Sale struct {
	policy     Policy
	cart       *cart.Cart
	discount   *discount.Spec
	ledger     *ledger.Ledger
	clientID   *string
	key        string
	submitting bool
}

// NewSale returns an empty sale bound to policy.
func NewSale(policy Policy) *Sale {
	l, _ := ledger.New(money.Zero)
	return &Sale{
		policy: policy,
		cart:   cart.New(),
		ledger: l,
		key:    uuid.NewString(),
	}
}

func (s *Sale) Policy() Policy { return s.policy }

// IdempotencyKey identifies this sale to the backend across manual retries.
func (s *Sale) IdempotencyKey() string { return s.key }

func (s *Sale) Lines() []cart.LineItem { return s.cart.Lines() }

func (s *Sale) Payments() []ledger.Payment { return s.ledger.Payments() }

// Discount returns the discount spec currently applied, if any.
func (s *Sale) Discount() (discount.Spec, bool) {
	if s.discount == nil {
		return discount.Spec{}, false
	}
	return *s.discount, true
}

// ClientID returns the bound customer, if any.
func (s *Sale) ClientID() (string, bool) {
	if s.clientID == nil {
		return "", false
	}
	return *s.clientID, true
}

func (s *Sale) Submitting() bool { return s.submitting }

// AddItem adds one unit of product to the cart.
func (s *Sale) AddItem(p cart.Product, availableStock int) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if err := s.cart.AddItem(p, availableStock); err != nil {
		return err
	}
	return s.retotal()
}

// ChangeQuantity applies delta to a cart line.
func (s *Sale) ChangeQuantity(productID string, delta, availableStock int) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if err := s.cart.ChangeQuantity(productID, delta, availableStock); err != nil {
		return err
	}
	return s.retotal()
}

// SetDiscount applies an order-level discount. Authority checks belong to the caller.
func (s *Sale) SetDiscount(spec discount.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := s.checkEditable(); err != nil {
		return err
	}
	s.discount = &spec
	return s.retotal()
}

// ClearDiscount removes the order-level discount.
func (s *Sale) ClearDiscount() error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	s.discount = nil
	return s.retotal()
}

// SetClient binds the sale to a customer. An empty id makes the sale anonymous.
func (s *Sale) SetClient(clientID string) error {
	if s.submitting {
		return ErrSubmissionInFlight
	}
	id := strings.TrimSpace(clientID)
	if id == "" {
		s.clientID = nil
		return nil
	}
	s.clientID = &id
	return nil
}

// AddPayment records a tender after checking the channel policy.
func (s *Sale) AddPayment(method ledger.Method, tendered money.Money) (ledger.Payment, error) {
	if s.submitting {
		return ledger.Payment{}, ErrSubmissionInFlight
	}
	if _, err := ledger.ParseMethod(string(method)); err != nil {
		return ledger.Payment{}, err
	}
	if !s.policy.Allows(method) {
		return ledger.Payment{}, fmt.Errorf("%s on %s: %w", method, s.policy.Channel, ErrMethodNotAllowed)
	}
	return s.ledger.AddPayment(method, tendered)
}

// ChangeDue previews the change for a cash tender.
func (s *Sale) ChangeDue(tendered money.Money) money.Money {
	return s.ledger.ChangeDue(tendered)
}

// Totals derives subtotal, discount, total and payment position.
func (s *Sale) Totals() Totals {
	subtotal := s.cart.Subtotal()
	effective := s.effectiveDiscount(subtotal)
	return Totals{
		Subtotal:   subtotal,
		Discount:   effective,
		Total:      subtotal.Sub(effective),
		Paid:       s.ledger.Paid(),
		BalanceDue: s.ledger.BalanceDue(),
		ChangeOwed: s.ledger.TotalChangeOwed(),
		State:      s.ledger.State(),
	}
}

// Clear discards the cart, discount, payments and customer and starts a new
// sale identity.
func (s *Sale) Clear() error {
	if s.submitting {
		return ErrSubmissionInFlight
	}
	s.reset()
	return nil
}

func (s *Sale) reset() {
	s.cart.Clear()
	s.ledger.Clear()
	s.discount = nil
	s.clientID = nil
	s.submitting = false
	s.key = uuid.NewString()
}

func (s *Sale) effectiveDiscount(subtotal money.Money) money.Money {
	if s.discount == nil {
		return money.Zero
	}
	return discount.Apply(subtotal, *s.discount)
}

func (s *Sale) checkEditable() error {
	if s.submitting {
		return ErrSubmissionInFlight
	}
	if s.ledger.Len() > 0 {
		return ErrSaleLocked
	}
	return nil
}

func (s *Sale) retotal() error {
	subtotal := s.cart.Subtotal()
	return s.ledger.Reset(subtotal.Sub(s.effectiveDiscount(subtotal)))
}
