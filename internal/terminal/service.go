// Package terminal is the gateway surface of the settlement engine: it keeps
// the current sale of every terminal and drives it from HTTP requests.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/pos-terminal/internal/audit"
	"github.com/noah-isme/pos-terminal/internal/auth"
	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/cart"
	"github.com/noah-isme/pos-terminal/internal/discount"
	"github.com/noah-isme/pos-terminal/internal/ledger"
	"github.com/noah-isme/pos-terminal/internal/lock"
	"github.com/noah-isme/pos-terminal/internal/money"
	"github.com/noah-isme/pos-terminal/internal/obs"
	"github.com/noah-isme/pos-terminal/internal/settlement"
)

var (
	// ErrTerminalRequired is returned when a request carries no terminal id.
	ErrTerminalRequired = errors.New("terminal: terminal id required")
	// ErrUnknownChannel is returned for a channel with no configured policy.
	ErrUnknownChannel = errors.New("terminal: unknown channel")
	// ErrDiscountForbidden is returned when the caller may not apply discounts.
	ErrDiscountForbidden = errors.New("terminal: discounts require an administrator")
)

// Catalog answers availability questions for cart operations.
type Catalog interface {
	Lookup(ctx context.Context, productID string) (cart.Product, int, error)
	Invalidate(ctx context.Context)
}

// ClientDirectory resolves customer identifiers.
type ClientDirectory interface {
	LookupClient(ctx context.Context, identifier string) (backend.Customer, error)
}

// Locker serialises finalize across gateway replicas.
type Locker interface {
	TryWithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// Journal records finalize attempts.
type Journal interface {
	Record(ctx context.Context, a audit.Attempt)
}

// Config wires the Service dependencies.
type Config struct {
	Registry  *Registry
	Catalog   Catalog
	Clients   ClientDirectory
	Submitter settlement.Submitter
	Locker    Locker
	LockTTL   time.Duration
	Journal   Journal
	Logger    *zerolog.Logger
}

// Service drives terminal sales.
type Service struct {
	registry  *Registry
	catalog   Catalog
	clients   ClientDirectory
	submitter settlement.Submitter
	locker    Locker
	lockTTL   time.Duration
	journal   Journal
	logger    zerolog.Logger
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, errors.New("terminal: registry is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("terminal: catalog is required")
	}
	if cfg.Submitter == nil {
		return nil, settlement.ErrNoSubmitter
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		registry:  cfg.Registry,
		catalog:   cfg.Catalog,
		clients:   cfg.Clients,
		submitter: cfg.Submitter,
		locker:    cfg.Locker,
		lockTTL:   ttl,
		journal:   cfg.Journal,
		logger:    logger,
	}, nil
}

// SaleView is the state of a sale as rendered to the UI.
type SaleView struct {
	TerminalID     string             `json:"terminal_id"`
	Channel        settlement.Channel `json:"channel"`
	Lines          []LineView         `json:"lines"`
	DiscountSpec   *discount.Spec     `json:"discount_spec"`
	ClientID       *string            `json:"client_id"`
	Payments       []ledger.Payment   `json:"payments"`
	Submitting     bool               `json:"submitting"`
	IdempotencyKey string             `json:"idempotency_key"`
	settlement.Totals
}

// LineView is one cart line with its amount.
type LineView struct {
	cart.LineItem
	Amount money.Money `json:"amount"`
}

func viewOf(key Key, s *settlement.Sale) SaleView {
	lines := s.Lines()
	view := SaleView{
		TerminalID:     key.TerminalID,
		Channel:        key.Channel,
		Lines:          make([]LineView, 0, len(lines)),
		Payments:       s.Payments(),
		Submitting:     s.Submitting(),
		IdempotencyKey: s.IdempotencyKey(),
		Totals:         s.Totals(),
	}
	for _, l := range lines {
		view.Lines = append(view.Lines, LineView{LineItem: l, Amount: l.Amount()})
	}
	if spec, ok := s.Discount(); ok {
		view.DiscountSpec = &spec
	}
	if id, ok := s.ClientID(); ok {
		view.ClientID = &id
	}
	if view.Payments == nil {
		view.Payments = []ledger.Payment{}
	}
	return view
}

// update runs fn on the sale and returns the resulting view. The view is
// returned even when fn fails so callers can show the untouched state.
func (s *Service) update(key Key, fn func(*settlement.Sale) error) (SaleView, error) {
	var view SaleView
	err := s.registry.With(key, func(sale *settlement.Sale) error {
		err := fn(sale)
		view = viewOf(key, sale)
		return err
	})
	return view, err
}

// View returns the current sale of the terminal.
func (s *Service) View(key Key) (SaleView, error) {
	return s.update(key, func(*settlement.Sale) error { return nil })
}

// AddItem adds one unit of productID, bounded by the stock the catalog reports.
func (s *Service) AddItem(ctx context.Context, key Key, productID string) (SaleView, error) {
	product, stock, err := s.catalog.Lookup(ctx, strings.TrimSpace(productID))
	if err != nil {
		return SaleView{}, err
	}
	return s.update(key, func(sale *settlement.Sale) error {
		return sale.AddItem(product, stock)
	})
}

// ChangeQuantity applies delta to a line. Only increases consult the catalog.
func (s *Service) ChangeQuantity(ctx context.Context, key Key, productID string, delta int) (SaleView, error) {
	stock := math.MaxInt
	if delta > 0 {
		_, available, err := s.catalog.Lookup(ctx, productID)
		if err != nil {
			return SaleView{}, err
		}
		stock = available
	}
	return s.update(key, func(sale *settlement.Sale) error {
		return sale.ChangeQuantity(productID, delta, stock)
	})
}

// SetDiscount applies an order-level discount. The session in ctx must
// belong to an administrator and the channel must be the staff POS.
func (s *Service) SetDiscount(ctx context.Context, key Key, spec discount.Spec) (SaleView, error) {
	if err := canDiscount(ctx, key); err != nil {
		return SaleView{}, err
	}
	return s.update(key, func(sale *settlement.Sale) error {
		return sale.SetDiscount(spec)
	})
}

// ClearDiscount removes the order-level discount.
func (s *Service) ClearDiscount(ctx context.Context, key Key) (SaleView, error) {
	if err := canDiscount(ctx, key); err != nil {
		return SaleView{}, err
	}
	return s.update(key, func(sale *settlement.Sale) error {
		return sale.ClearDiscount()
	})
}

func canDiscount(ctx context.Context, key Key) error {
	if key.Channel != settlement.ChannelPOS {
		return ErrDiscountForbidden
	}
	sess, ok := auth.FromContext(ctx)
	if !ok || !sess.CanApplyDiscount() {
		return ErrDiscountForbidden
	}
	return nil
}

// SetClient resolves identifier with the backend and binds the customer to
// the sale. An empty identifier makes the sale anonymous again.
func (s *Service) SetClient(ctx context.Context, key Key, identifier string) (SaleView, *backend.Customer, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		view, err := s.update(key, func(sale *settlement.Sale) error {
			return sale.SetClient("")
		})
		return view, nil, err
	}
	if s.clients == nil {
		return SaleView{}, nil, errors.New("terminal: client directory not configured")
	}
	customer, err := s.clients.LookupClient(ctx, identifier)
	if err != nil {
		return SaleView{}, nil, err
	}
	view, err := s.update(key, func(sale *settlement.Sale) error {
		return sale.SetClient(customer.ID)
	})
	if err != nil {
		return view, nil, err
	}
	return view, &customer, nil
}

// AddPayment records a tender.
func (s *Service) AddPayment(ctx context.Context, key Key, method string, amount money.Money) (SaleView, ledger.Payment, error) {
	m, err := ledger.ParseMethod(method)
	if err != nil {
		obs.ObservePayment("unknown", "rejected")
		return SaleView{}, ledger.Payment{}, err
	}
	var payment ledger.Payment
	view, err := s.update(key, func(sale *settlement.Sale) error {
		p, err := sale.AddPayment(m, amount)
		payment = p
		return err
	})
	if err != nil {
		obs.ObservePayment(string(m), "rejected")
		s.logger.Info().Err(err).
			Str("terminal_id", key.TerminalID).
			Str("method", string(m)).
			Str("amount", amount.String()).
			Msg("payment_rejected")
		return view, ledger.Payment{}, err
	}
	obs.ObservePayment(string(m), "accepted")
	return view, payment, nil
}

// ChangeDue previews the change a cash tender would produce.
func (s *Service) ChangeDue(key Key, tendered money.Money) (money.Money, error) {
	change := money.Zero
	err := s.registry.With(key, func(sale *settlement.Sale) error {
		change = sale.ChangeDue(tendered)
		return nil
	})
	return change, err
}

// Clear discards the sale and starts a new one.
func (s *Service) Clear(key Key) (SaleView, error) {
	return s.update(key, func(sale *settlement.Sale) error {
		return sale.Clear()
	})
}

// Finalize submits the sale once. The terminal's sale is marked as in flight
// for the duration of the backend call, and a Redis lock keeps other
// replicas from submitting the same terminal concurrently. On failure the
// sale is left exactly as it was.
func (s *Service) Finalize(ctx context.Context, key Key) (settlement.Receipt, error) {
	ctx, span := otel.Tracer("terminal.Service").Start(ctx, "TerminalService.Finalize")
	defer span.End()
	span.SetAttributes(
		attribute.String("terminal.id", key.TerminalID),
		attribute.String("sale.channel", string(key.Channel)),
	)

	var receipt settlement.Receipt
	run := func(ctx context.Context) error {
		r, err := s.finalize(ctx, key)
		receipt = r
		return err
	}
	var err error
	if s.locker == nil {
		err = run(ctx)
	} else {
		err = s.locker.TryWithLock(ctx, "finalize:"+key.String(), s.lockTTL, run)
		if errors.Is(err, lock.ErrNotAcquired) {
			err = fmt.Errorf("%s: %w", key, settlement.ErrSubmissionInFlight)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return settlement.Receipt{}, err
	}
	span.SetAttributes(attribute.String("sale.id", receipt.SaleID))
	return receipt, nil
}

func (s *Service) finalize(ctx context.Context, key Key) (settlement.Receipt, error) {
	var (
		sub    settlement.Submission
		change money.Money
	)
	err := s.registry.With(key, func(sale *settlement.Sale) error {
		var err error
		sub, err = sale.BeginSubmit()
		change = sale.Totals().ChangeOwed
		return err
	})
	if err != nil {
		obs.ObserveFinalize(string(key.Channel), "rejected")
		return settlement.Receipt{}, err
	}

	employeeID := ""
	if sess, ok := auth.FromContext(ctx); ok {
		employeeID = sess.Employee.ID
	}
	start := time.Now()
	receipt, submitErr := s.submitter.SubmitSale(ctx, sub)
	elapsed := obs.DurationMillis(time.Since(start))

	if err := s.registry.With(key, func(sale *settlement.Sale) error {
		if submitErr != nil {
			sale.AbortSubmit()
			return nil
		}
		sale.CompleteSubmit()
		return nil
	}); err != nil {
		s.logger.Error().Err(err).
			Str("terminal_id", key.TerminalID).
			Str("channel", string(key.Channel)).
			Str("idempotency_key", sub.IdempotencyKey).
			Bool("submitted", submitErr == nil).
			Msg("sale_submit_release_failed")
	}

	attempt := audit.Attempt{
		TerminalID: key.TerminalID,
		EmployeeID: employeeID,
		Submission: sub,
		Err:        submitErr,
		Status:     backend.StatusOf(submitErr),
	}
	if submitErr != nil {
		obs.ObserveFinalize(string(key.Channel), "failed")
		s.logger.Warn().Err(submitErr).
			Str("terminal_id", key.TerminalID).
			Str("channel", string(key.Channel)).
			Str("idempotency_key", sub.IdempotencyKey).
			Int("backend_status", attempt.Status).
			Float64("duration_ms", elapsed).
			Msg("sale_submit_failed")
		s.record(ctx, attempt)
		return settlement.Receipt{}, submitErr
	}

	if !receipt.Change.IsZero() && !receipt.Change.Equal(change) {
		s.logger.Warn().
			Str("terminal_id", key.TerminalID).
			Str("sale_id", receipt.SaleID).
			Str("backend_change", receipt.Change.String()).
			Str("change", change.String()).
			Msg("receipt_change_mismatch")
	}
	receipt.Change = change
	attempt.Receipt = &receipt
	obs.ObserveFinalize(string(key.Channel), "submitted")
	s.logger.Info().
		Str("terminal_id", key.TerminalID).
		Str("channel", string(key.Channel)).
		Str("sale_id", receipt.SaleID).
		Str("total", sub.Total.String()).
		Float64("duration_ms", elapsed).
		Msg("sale_submitted")
	s.record(ctx, attempt)
	s.catalog.Invalidate(ctx)
	return receipt, nil
}

func (s *Service) record(ctx context.Context, a audit.Attempt) {
	if s.journal == nil {
		return
	}
	s.journal.Record(context.WithoutCancel(ctx), a)
}
