// Package audit journals every sale finalize attempt so a terminal's
// submissions can be reconciled against the backend.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-terminal/internal/money"
	"github.com/noah-isme/pos-terminal/internal/settlement"
)

// Result classifies a finalize attempt.
type Result string

const (
	// ResultSubmitted means the backend accepted the sale.
	ResultSubmitted Result = "submitted"
	// ResultRejected means the backend answered with an error.
	ResultRejected Result = "rejected"
	// ResultFailed means the backend could not be reached or its answer was unreadable.
	ResultFailed Result = "failed"
)

// Entry is one journaled finalize attempt.
type Entry struct {
	ID             string                         `json:"id"`
	TerminalID     string                         `json:"terminal_id"`
	Channel        string                         `json:"channel"`
	EmployeeID     *string                        `json:"employee_id,omitempty"`
	IdempotencyKey string                         `json:"idempotency_key"`
	ClientID       *string                        `json:"client_id,omitempty"`
	Subtotal       money.Money                    `json:"subtotal"`
	Discount       money.Money                    `json:"discount"`
	Total          money.Money                    `json:"total"`
	Payments       []settlement.SubmissionPayment `json:"payments"`
	Result         Result                         `json:"result"`
	SaleID         *string                        `json:"sale_id,omitempty"`
	BackendStatus  *int                           `json:"backend_status,omitempty"`
	ErrorMessage   *string                        `json:"error_message,omitempty"`
	CreatedAt      time.Time                      `json:"created_at"`
}

// ListParams selects journal entries for one terminal, newest first.
type ListParams struct {
	TerminalID string
	Limit      int
	Offset     int
}

// Store defines the persistence operations required for the journal.
type Store interface {
	InsertEntry(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context, p ListParams) ([]Entry, error)
}

// NopStore discards entries; it is used when no database is configured.
type NopStore struct{}

func (NopStore) InsertEntry(context.Context, Entry) error { return nil }

func (NopStore) ListEntries(context.Context, ListParams) ([]Entry, error) { return []Entry{}, nil }

// Attempt describes a finalize attempt as seen by the gateway.
type Attempt struct {
	TerminalID string
	EmployeeID string
	Submission settlement.Submission
	Receipt    *settlement.Receipt
	Err        error
	Status     int
}

// Service turns finalize attempts into journal entries. Journal failures are
// logged and never fail the sale.
type Service struct {
	Store   Store
	Enabled bool
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Record journals attempt when the journal is enabled.
func (s Service) Record(ctx context.Context, a Attempt) {
	if !s.Enabled || s.Store == nil {
		return
	}
	entry := s.entryFor(a)
	if err := s.Store.InsertEntry(ctx, entry); err != nil {
		s.Logger.Error().Err(err).
			Str("terminal_id", entry.TerminalID).
			Str("idempotency_key", entry.IdempotencyKey).
			Str("result", string(entry.Result)).
			Msg("sale_journal_write_failed")
	}
}

func (s Service) entryFor(a Attempt) Entry {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	sub := a.Submission
	entry := Entry{
		ID:             uuid.NewString(),
		TerminalID:     a.TerminalID,
		Channel:        string(sub.Channel),
		EmployeeID:     optional(a.EmployeeID),
		IdempotencyKey: sub.IdempotencyKey,
		ClientID:       sub.ClientID,
		Subtotal:       sub.Subtotal,
		Discount:       sub.Discount,
		Total:          sub.Total,
		Payments:       sub.Payments,
		CreatedAt:      now().UTC(),
	}
	if entry.Payments == nil {
		entry.Payments = []settlement.SubmissionPayment{}
	}
	switch {
	case a.Err == nil && a.Receipt != nil:
		entry.Result = ResultSubmitted
		entry.SaleID = optional(a.Receipt.SaleID)
	case a.Status > 0:
		entry.Result = ResultRejected
	default:
		entry.Result = ResultFailed
	}
	if a.Status > 0 {
		status := a.Status
		entry.BackendStatus = &status
	}
	if a.Err != nil {
		entry.ErrorMessage = optional(a.Err.Error())
	}
	return entry
}

// List returns journal entries for a terminal.
func (s Service) List(ctx context.Context, p ListParams) ([]Entry, error) {
	if s.Store == nil {
		return nil, errors.New("audit: store not configured")
	}
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return s.Store.ListEntries(ctx, p)
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
