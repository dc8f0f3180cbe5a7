package terminal_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/audit"
	"github.com/noah-isme/pos-terminal/internal/auth"
	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/cart"
	"github.com/noah-isme/pos-terminal/internal/common"
	"github.com/noah-isme/pos-terminal/internal/discount"
	"github.com/noah-isme/pos-terminal/internal/ledger"
	"github.com/noah-isme/pos-terminal/internal/lock"
	"github.com/noah-isme/pos-terminal/internal/money"
	"github.com/noah-isme/pos-terminal/internal/settlement"
	"github.com/noah-isme/pos-terminal/internal/terminal"
)

type stockItem struct {
	product cart.Product
	stock   int
}

type stubCatalog struct {
	mu          sync.Mutex
	items       map[string]stockItem
	invalidated int
}

func newCatalog() *stubCatalog {
	return &stubCatalog{items: map[string]stockItem{
		"loaf":  {product: cart.Product{ID: "loaf", Name: "Sourdough loaf", UnitPrice: money.New(1000)}, stock: 10},
		"tart":  {product: cart.Product{ID: "tart", Name: "Lemon tart", UnitPrice: money.New(500)}, stock: 1},
		"scone": {product: cart.Product{ID: "scone", Name: "Scone", UnitPrice: money.New(500)}, stock: 0},
	}}
}

func (c *stubCatalog) Lookup(_ context.Context, id string) (cart.Product, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return cart.Product{}, 0, common.NewAppError("PRODUCT_NOT_FOUND", "product not found", http.StatusNotFound, errors.New("missing"))
	}
	return item.product, item.stock, nil
}

func (c *stubCatalog) Invalidate(context.Context) {
	c.mu.Lock()
	c.invalidated++
	c.mu.Unlock()
}

type stubClients struct {
	customers map[string]backend.Customer
}

func (s stubClients) LookupClient(_ context.Context, identifier string) (backend.Customer, error) {
	c, ok := s.customers[identifier]
	if !ok {
		return backend.Customer{}, errors.Join(errors.New("no client with that identifier"), backend.ErrClientNotFound)
	}
	return c, nil
}

type stubSubmitter struct {
	mu      sync.Mutex
	calls   []settlement.Submission
	receipt settlement.Receipt
	err     error
	block   chan struct{}
}

func (s *stubSubmitter) SubmitSale(_ context.Context, sub settlement.Submission) (settlement.Receipt, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sub)
	if s.err != nil {
		return settlement.Receipt{}, s.err
	}
	return s.receipt, nil
}

func (s *stubSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type memoryJournal struct {
	mu       sync.Mutex
	attempts []audit.Attempt
}

func (j *memoryJournal) Record(_ context.Context, a audit.Attempt) {
	j.mu.Lock()
	j.attempts = append(j.attempts, a)
	j.mu.Unlock()
}

type fixture struct {
	svc       *terminal.Service
	catalog   *stubCatalog
	submitter *stubSubmitter
	journal   *memoryJournal
}

func newFixture(t *testing.T, locker terminal.Locker) fixture {
	t.Helper()
	f := fixture{
		catalog:   newCatalog(),
		submitter: &stubSubmitter{receipt: settlement.Receipt{SaleID: "S-100"}},
		journal:   &memoryJournal{},
	}
	svc, err := terminal.NewService(terminal.Config{
		Registry: terminal.NewRegistry(settlement.POSPolicy(), settlement.SelfOrderPolicy()),
		Catalog:  f.catalog,
		Clients: stubClients{customers: map[string]backend.Customer{
			"11.111.111-1": {ID: "client-7", Name: "Ana", Identifier: "11.111.111-1"},
		}},
		Submitter: f.submitter,
		Locker:    locker,
		Journal:   f.journal,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

var (
	pos   = terminal.Key{Channel: settlement.ChannelPOS, TerminalID: "T1"}
	kiosk = terminal.Key{Channel: settlement.ChannelSelfOrder, TerminalID: "K1"}
)

func adminCtx() context.Context {
	return auth.WithSession(context.Background(), auth.Session{
		ID:       "sess-1",
		Employee: auth.Employee{ID: "emp-1", Name: "Marta", Role: auth.RoleAdministrator},
	})
}

func cashierCtx() context.Context {
	return auth.WithSession(context.Background(), auth.Session{
		ID:       "sess-2",
		Employee: auth.Employee{ID: "emp-2", Name: "Luis", Role: "Cashier"},
	})
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := terminal.NewService(terminal.Config{})
	require.Error(t, err)

	_, err = terminal.NewService(terminal.Config{Registry: terminal.NewRegistry(), Catalog: newCatalog()})
	require.ErrorIs(t, err, settlement.ErrNoSubmitter)
}

func TestSaleFlowWithCashChange(t *testing.T) {
	f := newFixture(t, nil)
	ctx := cashierCtx()

	_, err := f.svc.AddItem(ctx, pos, "loaf")
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, pos, "loaf")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Equal(t, 2, view.Lines[0].Quantity)
	require.True(t, view.Lines[0].Amount.Equal(money.New(2000)))
	require.True(t, view.Total.Equal(money.New(2000)))

	change, err := f.svc.ChangeDue(pos, money.New(5000))
	require.NoError(t, err)
	require.True(t, change.Equal(money.New(3000)))

	view, payment, err := f.svc.AddPayment(ctx, pos, "CASH", money.New(5000))
	require.NoError(t, err)
	require.Equal(t, ledger.Cash, payment.Method)
	require.True(t, payment.Applied.Equal(money.New(2000)))
	require.Equal(t, ledger.Settled, view.State)

	receipt, err := f.svc.Finalize(ctx, pos)
	require.NoError(t, err)
	require.Equal(t, "S-100", receipt.SaleID)
	require.True(t, receipt.Change.Equal(money.New(3000)))
	require.Equal(t, 1, f.catalog.invalidated)

	require.Len(t, f.journal.attempts, 1)
	attempt := f.journal.attempts[0]
	require.Equal(t, "T1", attempt.TerminalID)
	require.Equal(t, "emp-2", attempt.EmployeeID)
	require.NotNil(t, attempt.Receipt)
	require.NoError(t, attempt.Err)

	view, err = f.svc.View(pos)
	require.NoError(t, err)
	require.Empty(t, view.Lines)
	require.Empty(t, view.Payments)
	require.NotEqual(t, f.submitter.calls[0].IdempotencyKey, view.IdempotencyKey)
}

func TestFinalizeWarnsOnBackendChangeMismatch(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	submitter := &stubSubmitter{receipt: settlement.Receipt{SaleID: "S-101", Change: money.New(100)}}
	svc, err := terminal.NewService(terminal.Config{
		Registry:  terminal.NewRegistry(settlement.POSPolicy()),
		Catalog:   newCatalog(),
		Submitter: submitter,
		Logger:    &logger,
	})
	require.NoError(t, err)

	ctx := cashierCtx()
	_, err = svc.AddItem(ctx, pos, "loaf")
	require.NoError(t, err)
	_, _, err = svc.AddPayment(ctx, pos, "CASH", money.New(5000))
	require.NoError(t, err)

	receipt, err := svc.Finalize(ctx, pos)
	require.NoError(t, err)
	require.True(t, receipt.Change.Equal(money.New(4000)))
	require.Contains(t, buf.String(), "receipt_change_mismatch")
	require.Contains(t, buf.String(), `"backend_change":"100"`)
}

func TestStockCeilingFromCatalog(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, pos, "scone")
	require.ErrorIs(t, err, cart.ErrOutOfStock)

	_, err = f.svc.AddItem(ctx, pos, "tart")
	require.NoError(t, err)
	view, err := f.svc.ChangeQuantity(ctx, pos, "tart", 1)
	require.ErrorIs(t, err, cart.ErrStockExceeded)
	require.Equal(t, 1, view.Lines[0].Quantity)

	view, err = f.svc.ChangeQuantity(ctx, pos, "tart", -1)
	require.NoError(t, err)
	require.Empty(t, view.Lines)

	_, err = f.svc.AddItem(ctx, pos, "croissant")
	require.True(t, common.IsAppError(err))
}

func TestDiscountRequiresAdministrator(t *testing.T) {
	f := newFixture(t, nil)
	spec := discount.Spec{Kind: discount.Percentage, Value: decimal.NewFromInt(10)}

	_, err := f.svc.AddItem(context.Background(), pos, "loaf")
	require.NoError(t, err)

	_, err = f.svc.SetDiscount(context.Background(), pos, spec)
	require.ErrorIs(t, err, terminal.ErrDiscountForbidden)
	_, err = f.svc.SetDiscount(cashierCtx(), pos, spec)
	require.ErrorIs(t, err, terminal.ErrDiscountForbidden)

	view, err := f.svc.SetDiscount(adminCtx(), pos, spec)
	require.NoError(t, err)
	require.True(t, view.Discount.Equal(money.New(100)))
	require.True(t, view.Total.Equal(money.New(900)))
	require.NotNil(t, view.DiscountSpec)

	view, err = f.svc.ClearDiscount(adminCtx(), pos)
	require.NoError(t, err)
	require.Nil(t, view.DiscountSpec)
	require.True(t, view.Total.Equal(money.New(1000)))

	_, err = f.svc.SetDiscount(adminCtx(), kiosk, spec)
	require.ErrorIs(t, err, terminal.ErrDiscountForbidden)
}

func TestSetClientLooksUpCustomer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, _, err := f.svc.SetClient(ctx, kiosk, "99.999.999-9")
	require.ErrorIs(t, err, backend.ErrClientNotFound)

	view, customer, err := f.svc.SetClient(ctx, kiosk, " 11.111.111-1 ")
	require.NoError(t, err)
	require.Equal(t, "Ana", customer.Name)
	require.Equal(t, "client-7", *view.ClientID)

	view, customer, err = f.svc.SetClient(ctx, kiosk, "")
	require.NoError(t, err)
	require.Nil(t, customer)
	require.Nil(t, view.ClientID)
}

func TestSelfOrderRequiresClientAndRejectsCash(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, kiosk, "tart")
	require.NoError(t, err)
	_, _, err = f.svc.AddPayment(ctx, kiosk, "cash", money.New(500))
	require.ErrorIs(t, err, settlement.ErrMethodNotAllowed)
	_, _, err = f.svc.AddPayment(ctx, kiosk, "transfer", money.New(500))
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, kiosk)
	require.ErrorIs(t, err, settlement.ErrClientRequired)
	require.Zero(t, f.submitter.count())

	_, _, err = f.svc.SetClient(ctx, kiosk, "11.111.111-1")
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, kiosk)
	require.NoError(t, err)
	require.Equal(t, settlement.ChannelSelfOrder, f.submitter.calls[0].Channel)
	require.Equal(t, "client-7", *f.submitter.calls[0].ClientID)
}

func TestFinalizeFailureLeavesSaleIntact(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.submitter.err = &backend.APIError{Status: http.StatusUnprocessableEntity, Message: "stock changed for loaf"}

	_, err := f.svc.AddItem(ctx, pos, "loaf")
	require.NoError(t, err)
	_, _, err = f.svc.AddPayment(ctx, pos, "debit", money.New(1000))
	require.NoError(t, err)
	before, err := f.svc.View(pos)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, pos)
	require.EqualError(t, err, "stock changed for loaf")

	after, err := f.svc.View(pos)
	require.NoError(t, err)
	require.Equal(t, before.IdempotencyKey, after.IdempotencyKey)
	require.Len(t, after.Lines, 1)
	require.Len(t, after.Payments, 1)
	require.False(t, after.Submitting)
	require.Zero(t, f.catalog.invalidated)

	require.Len(t, f.journal.attempts, 1)
	require.Equal(t, http.StatusUnprocessableEntity, f.journal.attempts[0].Status)
	require.Nil(t, f.journal.attempts[0].Receipt)

	f.submitter.err = nil
	_, err = f.svc.Finalize(ctx, pos)
	require.NoError(t, err)
	require.Equal(t, before.IdempotencyKey, f.submitter.calls[1].IdempotencyKey)
}

func TestFinalizeGatesBeforeSubmitting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Finalize(ctx, pos)
	require.ErrorIs(t, err, settlement.ErrEmptyCart)

	_, err = f.svc.AddItem(ctx, pos, "loaf")
	require.NoError(t, err)
	_, _, err = f.svc.AddPayment(ctx, pos, "credit", money.New(400))
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, pos)
	var incomplete *settlement.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	require.True(t, incomplete.BalanceDue.Equal(money.New(600)))
	require.Zero(t, f.submitter.count())
	require.Empty(t, f.journal.attempts)
}

func TestConcurrentFinalizeSubmitsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.submitter.block = make(chan struct{})

	_, err := f.svc.AddItem(ctx, pos, "loaf")
	require.NoError(t, err)
	_, _, err = f.svc.AddPayment(ctx, pos, "debit", money.New(1000))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Finalize(ctx, pos)
		done <- err
	}()

	require.Eventually(t, func() bool {
		view, err := f.svc.View(pos)
		return err == nil && view.Submitting
	}, time.Second, 5*time.Millisecond)

	_, err = f.svc.Finalize(ctx, pos)
	require.ErrorIs(t, err, settlement.ErrSubmissionInFlight)
	_, err = f.svc.Clear(pos)
	require.ErrorIs(t, err, settlement.ErrSubmissionInFlight)

	close(f.submitter.block)
	require.NoError(t, <-done)
	require.Equal(t, 1, f.submitter.count())
}

func TestFinalizeLockHeldByAnotherReplica(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, lock.Locker{R: client, Prefix: "pos:lock:"})
	ctx := context.Background()
	_, err = f.svc.AddItem(ctx, pos, "loaf")
	require.NoError(t, err)
	_, _, err = f.svc.AddPayment(ctx, pos, "transfer", money.New(1000))
	require.NoError(t, err)

	require.NoError(t, mr.Set("pos:lock:finalize:pos:T1", "other-replica"))
	_, err = f.svc.Finalize(ctx, pos)
	require.ErrorIs(t, err, settlement.ErrSubmissionInFlight)
	require.Zero(t, f.submitter.count())

	mr.Del("pos:lock:finalize:pos:T1")
	_, err = f.svc.Finalize(ctx, pos)
	require.NoError(t, err)
	require.False(t, mr.Exists("pos:lock:finalize:pos:T1"))
}

func TestTerminalsAreIndependent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	other := terminal.Key{Channel: settlement.ChannelPOS, TerminalID: "T2"}

	_, err := f.svc.AddItem(ctx, pos, "loaf")
	require.NoError(t, err)
	view, err := f.svc.View(other)
	require.NoError(t, err)
	require.Empty(t, view.Lines)

	_, err = f.svc.View(terminal.Key{Channel: settlement.ChannelPOS})
	require.ErrorIs(t, err, terminal.ErrTerminalRequired)
	_, err = f.svc.View(terminal.Key{Channel: "kiosk", TerminalID: "X"})
	require.ErrorIs(t, err, terminal.ErrUnknownChannel)
}
