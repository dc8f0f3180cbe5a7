package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-terminal/internal/discount"
	"github.com/noah-isme/pos-terminal/internal/ledger"
	"github.com/noah-isme/pos-terminal/internal/money"
)

var (
	// ErrEmptyCart is returned when finalizing a sale without lines.
	ErrEmptyCart = errors.New("settlement: cart is empty")
	// ErrPaymentIncomplete is matched by IncompleteError.
	ErrPaymentIncomplete = errors.New("settlement: payment incomplete")
	// ErrClientRequired is returned when the channel requires a customer and none is bound.
	ErrClientRequired = errors.New("settlement: client identification required")
	// ErrNoSubmitter is returned when Finalize is called without a submitter.
	ErrNoSubmitter = errors.New("settlement: submitter not configured")
)

// IncompleteError carries the balance still owed.
type IncompleteError struct {
	BalanceDue money.Money
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("settlement: payment incomplete, balance due %s", e.BalanceDue)
}

// Is lets errors.Is match ErrPaymentIncomplete.
func (e *IncompleteError) Is(target error) bool {
	return target == ErrPaymentIncomplete
}

// SubmissionLine is one line as sent to the backend.
type SubmissionLine struct {
	ProductID string      `json:"product_id"`
	Quantity  int         `json:"quantity"`
	UnitPrice money.Money `json:"unit_price"`
	Discount  money.Money `json:"discount"`
}

// SubmissionPayment is one tender as sent to the backend.
type SubmissionPayment struct {
	Method         ledger.Method `json:"method"`
	Amount         money.Money   `json:"amount"`
	AmountTendered money.Money   `json:"amount_tendered"`
}

// Submission is the immutable sale payload handed to the sales API.
type Submission struct {
	IdempotencyKey string              `json:"-"`
	ClientID       *string             `json:"client_id"`
	Channel        Channel             `json:"channel"`
	Lines          []SubmissionLine    `json:"items"`
	Payments       []SubmissionPayment `json:"payments"`
	Subtotal       money.Money         `json:"subtotal"`
	Discount       money.Money         `json:"discount"`
	Total          money.Money         `json:"total"`
}

// Receipt is the backend's answer to a successful submission.
type Receipt struct {
	SaleID    string      `json:"id"`
	Subtotal  money.Money `json:"subtotal"`
	Discount  money.Money `json:"discount"`
	Total     money.Money `json:"total"`
	Change    money.Money `json:"change"`
	CreatedAt time.Time   `json:"created_at"`
}

// Submitter delivers a submission to the sales API. Implementations must not
// retry on their own.
type Submitter interface {
	SubmitSale(ctx context.Context, sub Submission) (Receipt, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, sub Submission) (Receipt, error)

func (f SubmitterFunc) SubmitSale(ctx context.Context, sub Submission) (Receipt, error) {
	return f(ctx, sub)
}

// BuildSubmission checks the finalize preconditions and assembles the payload
// without changing the sale.
func (s *Sale) BuildSubmission() (Submission, error) {
	if s.cart.IsEmpty() {
		return Submission{}, ErrEmptyCart
	}
	if balance := s.ledger.BalanceDue(); !balance.IsZero() {
		return Submission{}, &IncompleteError{BalanceDue: balance}
	}
	if s.policy.RequireClient && s.clientID == nil {
		return Submission{}, ErrClientRequired
	}

	totals := s.Totals()
	lines := s.cart.Lines()
	shares := discount.Apportion(lines, totals.Discount, totals.Subtotal)
	sub := Submission{
		IdempotencyKey: s.key,
		Channel:        s.policy.Channel,
		Lines:          make([]SubmissionLine, 0, len(lines)),
		Payments:       make([]SubmissionPayment, 0, s.ledger.Len()),
		Subtotal:       totals.Subtotal,
		Discount:       totals.Discount,
		Total:          totals.Total,
	}
	if s.clientID != nil {
		id := *s.clientID
		sub.ClientID = &id
	}
	for i, l := range lines {
		sub.Lines = append(sub.Lines, SubmissionLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  shares[i],
		})
	}
	for _, p := range s.ledger.Payments() {
		sub.Payments = append(sub.Payments, SubmissionPayment{
			Method:         p.Method,
			Amount:         p.Applied,
			AmountTendered: p.Tendered,
		})
	}
	return sub, nil
}

// BeginSubmit builds the submission and marks the sale as in flight. Every
// mutation is refused until CompleteSubmit or AbortSubmit is called.
func (s *Sale) BeginSubmit() (Submission, error) {
	if s.submitting {
		return Submission{}, ErrSubmissionInFlight
	}
	sub, err := s.BuildSubmission()
	if err != nil {
		return Submission{}, err
	}
	s.submitting = true
	return sub, nil
}

// CompleteSubmit resets the sale after the backend accepted it.
func (s *Sale) CompleteSubmit() {
	s.reset()
}

// AbortSubmit releases the in-flight mark and leaves the sale untouched.
func (s *Sale) AbortSubmit() {
	s.submitting = false
}

// Finalize submits the sale once. On success the sale is cleared and the
// receipt carries the cash change owed; on failure the sale is left as it was.
func (s *Sale) Finalize(ctx context.Context, submitter Submitter) (Receipt, error) {
	if submitter == nil {
		return Receipt{}, ErrNoSubmitter
	}
	sub, err := s.BeginSubmit()
	if err != nil {
		return Receipt{}, err
	}
	change := s.ledger.TotalChangeOwed()
	receipt, err := submitter.SubmitSale(ctx, sub)
	if err != nil {
		s.AbortSubmit()
		return Receipt{}, err
	}
	if !receipt.Change.IsZero() && !receipt.Change.Equal(change) {
		zerolog.Ctx(ctx).Warn().
			Str("sale_id", receipt.SaleID).
			Str("backend_change", receipt.Change.String()).
			Str("change", change.String()).
			Msg("receipt_change_mismatch")
	}
	receipt.Change = change
	s.CompleteSubmit()
	return receipt, nil
}
