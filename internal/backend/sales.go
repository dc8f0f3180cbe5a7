package backend

import (
	"context"
	"errors"
	"net/http"

	"github.com/noah-isme/pos-terminal/internal/settlement"
)

var _ settlement.Submitter = (*Client)(nil)

// SubmitSale posts the sale once. The submission's idempotency key travels in
// the Idempotency-Key header so a manual retry cannot record the sale twice.
func (c *Client) SubmitSale(ctx context.Context, sub settlement.Submission) (settlement.Receipt, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/sales", nil, sub)
	if err != nil {
		return settlement.Receipt{}, err
	}
	if sub.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", sub.IdempotencyKey)
	}
	var out envelope[settlement.Receipt]
	if err := c.do(ctx, c.writes, "submit_sale", req, &out); err != nil {
		return settlement.Receipt{}, err
	}
	if out.Data.SaleID == "" {
		return settlement.Receipt{}, errors.New("backend submit_sale: response carries no sale id")
	}
	return out.Data, nil
}
