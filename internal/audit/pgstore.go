package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pos-terminal/internal/money"
)

const insertEntrySQL = `
INSERT INTO sale_journal (
    id, terminal_id, channel, employee_id, idempotency_key, client_id,
    subtotal, discount, total, payments, result, sale_id, backend_status,
    error_message, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const listEntriesSQL = `
SELECT id::text, terminal_id, channel, employee_id, idempotency_key, client_id,
       subtotal, discount, total, payments, result, sale_id, backend_status,
       error_message, created_at
FROM sale_journal
WHERE terminal_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

// PGStore persists the journal in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertEntry writes one journal row.
func (s PGStore) InsertEntry(ctx context.Context, e Entry) error {
	payments, err := json.Marshal(e.Payments)
	if err != nil {
		return fmt.Errorf("encode payments: %w", err)
	}
	_, err = s.Pool.Exec(ctx, insertEntrySQL,
		e.ID, e.TerminalID, e.Channel, e.EmployeeID, e.IdempotencyKey, e.ClientID,
		e.Subtotal.Decimal(), e.Discount.Decimal(), e.Total.Decimal(), payments,
		string(e.Result), e.SaleID, e.BackendStatus, e.ErrorMessage, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale journal: %w", err)
	}
	return nil
}

// ListEntries returns a page of a terminal's journal, newest first.
func (s PGStore) ListEntries(ctx context.Context, p ListParams) ([]Entry, error) {
	rows, err := s.Pool.Query(ctx, listEntriesSQL, p.TerminalID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("list sale journal: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("list sale journal: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e                     Entry
		subtotal, disc, total decimal.Decimal
		payments              []byte
		result                string
		backendStatus         *int32
	)
	if err := row.Scan(
		&e.ID, &e.TerminalID, &e.Channel, &e.EmployeeID, &e.IdempotencyKey, &e.ClientID,
		&subtotal, &disc, &total, &payments, &result, &e.SaleID, &backendStatus,
		&e.ErrorMessage, &e.CreatedAt,
	); err != nil {
		return Entry{}, err
	}
	e.Subtotal = money.FromDecimal(subtotal)
	e.Discount = money.FromDecimal(disc)
	e.Total = money.FromDecimal(total)
	e.Result = Result(result)
	if backendStatus != nil {
		status := int(*backendStatus)
		e.BackendStatus = &status
	}
	if len(payments) > 0 {
		if err := json.Unmarshal(payments, &e.Payments); err != nil {
			return Entry{}, fmt.Errorf("decode payments: %w", err)
		}
	}
	return e, nil
}
