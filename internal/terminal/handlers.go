package terminal

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/cart"
	"github.com/noah-isme/pos-terminal/internal/common"
	"github.com/noah-isme/pos-terminal/internal/discount"
	"github.com/noah-isme/pos-terminal/internal/ledger"
	"github.com/noah-isme/pos-terminal/internal/money"
	"github.com/noah-isme/pos-terminal/internal/resilience"
	"github.com/noah-isme/pos-terminal/internal/settlement"
)

// Handler exposes the sale of one channel over HTTP.
type Handler struct {
	Service *Service
	Channel settlement.Channel
}

// Routes registers the sale endpoints on r, which must be mounted under a
// {terminalID} route parameter. finalize wraps the finalize endpoint only.
func (h Handler) Routes(r chi.Router, finalize ...func(http.Handler) http.Handler) {
	r.Use(TerminalContext)
	r.Get("/sale", h.Get)
	r.Delete("/sale", h.Clear)
	r.Post("/sale/items", h.AddItem)
	r.Patch("/sale/items/{productID}", h.ChangeQuantity)
	if h.Channel == settlement.ChannelPOS {
		r.Put("/sale/discount", h.SetDiscount)
		r.Delete("/sale/discount", h.ClearDiscount)
	}
	r.Put("/sale/client", h.SetClient)
	r.Post("/sale/payments", h.AddPayment)
	r.Get("/sale/change", h.ChangeDue)
	r.With(finalize...).Post("/sale/finalize", h.Finalize)
}

// TerminalContext tags the request context with the terminalID route parameter.
func TerminalContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "terminalID"))
		if id == "" {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "terminal id is required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithTerminalID(r.Context(), id)))
	})
}

func (h Handler) key(r *http.Request) Key {
	id, _ := common.TerminalID(r.Context())
	if id == "" {
		id = strings.TrimSpace(chi.URLParam(r, "terminalID"))
	}
	return Key{Channel: h.Channel, TerminalID: id}
}

func (h Handler) ready(w http.ResponseWriter) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "terminal service not configured", nil)
		return false
	}
	return true
}

// Get returns the current sale.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.Service.View(h.key(r))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

// AddItem adds one unit of a product.
func (h Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Service.AddItem(r.Context(), h.key(r), req.ProductID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

type changeQuantityRequest struct {
	Delta int `json:"delta" validate:"ne=0"`
}

// ChangeQuantity applies a signed delta to a line.
func (h Handler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req changeQuantityRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Service.ChangeQuantity(r.Context(), h.key(r), chi.URLParam(r, "productID"), req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

type discountRequest struct {
	Kind  string          `json:"kind" validate:"required"`
	Value money.Money `json:"value"`
}

// SetDiscount applies an order-level discount.
func (h Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req discountRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := discount.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Service.SetDiscount(r.Context(), h.key(r), discount.Spec{Kind: kind, Value: req.Value.Decimal()})
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// ClearDiscount removes the order-level discount.
func (h Handler) ClearDiscount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.Service.ClearDiscount(r.Context(), h.key(r))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

type clientRequest struct {
	Identifier string `json:"identifier" validate:"max=128"`
}

// SetClient identifies the customer of the sale.
func (h Handler) SetClient(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req clientRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, customer, err := h.Service.SetClient(r.Context(), h.key(r), req.Identifier)
	if err != nil {
		writeError(w, err)
		return
	}
	common.DataWith(w, http.StatusOK, view, map[string]any{"client": customer})
}

type paymentRequest struct {
	Method string      `json:"method" validate:"required"`
	Amount money.Money `json:"amount"`
}

// AddPayment records a tender.
func (h Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req paymentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, payment, err := h.Service.AddPayment(r.Context(), h.key(r), req.Method, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	common.DataWith(w, http.StatusCreated, view, map[string]any{"payment": payment})
}

// ChangeDue previews the change for ?tendered=.
func (h Handler) ChangeDue(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	tendered, err := money.Parse(r.URL.Query().Get("tendered"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tendered must be a decimal amount", nil)
		return
	}
	change, err := h.Service.ChangeDue(h.key(r), tendered)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"tendered": tendered, "change": change})
}

// Finalize submits the sale to the backend.
func (h Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	receipt, err := h.Service.Finalize(r.Context(), h.key(r))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, receipt)
}

// Clear discards the sale.
func (h Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.Service.Clear(h.key(r))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func writeError(w http.ResponseWriter, err error) {
	var (
		apiErr     *backend.APIError
		incomplete *settlement.IncompleteError
	)
	switch {
	case err == nil:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
	case errors.As(err, &incomplete):
		common.JSONError(w, http.StatusConflict, "PAYMENT_INCOMPLETE", "payment incomplete", map[string]any{"balance_due": incomplete.BalanceDue})
	case errors.Is(err, cart.ErrOutOfStock), errors.Is(err, cart.ErrStockExceeded):
		common.JSONError(w, http.StatusConflict, "STOCK_UNAVAILABLE", "not enough stock for this product", nil)
	case errors.Is(err, cart.ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "LINE_NOT_FOUND", "product is not in the sale", nil)
	case errors.Is(err, cart.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, settlement.ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", "the sale has no items", nil)
	case errors.Is(err, settlement.ErrSaleLocked):
		common.JSONError(w, http.StatusConflict, "SALE_LOCKED", "items and discount cannot change once a payment is recorded", nil)
	case errors.Is(err, settlement.ErrSubmissionInFlight):
		common.JSONError(w, http.StatusConflict, "SUBMISSION_IN_FLIGHT", "the sale is being submitted", nil)
	case errors.Is(err, settlement.ErrClientRequired):
		common.JSONError(w, http.StatusUnprocessableEntity, "CLIENT_REQUIRED", "identify the customer before paying", nil)
	case errors.Is(err, settlement.ErrMethodNotAllowed),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInsufficientCash),
		errors.Is(err, ledger.ErrExceedsBalance),
		errors.Is(err, ledger.ErrUnknownMethod),
		errors.Is(err, ledger.ErrSettled):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_PAYMENT", err.Error(), nil)
	case errors.Is(err, money.ErrOutOfRange):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount is out of range", nil)
	case errors.Is(err, discount.ErrUnknownKind):
		common.JSONError(w, http.StatusBadRequest, "INVALID_DISCOUNT", "discount kind must be fixed_amount or percentage", nil)
	case errors.Is(err, ErrDiscountForbidden):
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "discounts require an administrator", nil)
	case errors.Is(err, ErrTerminalRequired), errors.Is(err, ErrUnknownChannel):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, backend.ErrClientNotFound):
		common.JSONError(w, http.StatusNotFound, "CLIENT_NOT_FOUND", clientMessage(err), nil)
	case common.IsAppError(err):
		appErr, _ := common.AsAppError(err)
		common.WriteAppError(w, appErr)
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		common.JSONError(w, status, "BACKEND_ERROR", apiErr.Message, map[string]any{"backend_code": apiErr.Code})
	case errors.Is(err, resilience.ErrOpenCircuit), errors.Is(err, backend.ErrUnavailable):
		common.JSONError(w, http.StatusBadGateway, "BACKEND_UNAVAILABLE", "the sales backend is unreachable", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}

func clientMessage(err error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+backend.ErrClientNotFound.Error())
	if msg == err.Error() || msg == "" {
		return "client not found"
	}
	return msg
}
