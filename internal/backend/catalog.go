package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/pos-terminal/internal/money"
)

// Product is a catalog entry with its current stock.
type Product struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	UnitPrice      money.Money `json:"unit_price"`
	AvailableStock int         `json:"available_stock"`
}

// Customer is a registered client of the bakery.
type Customer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// ListProducts returns every sellable product with its available stock.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/products/availability", nil, nil)
	if err != nil {
		return nil, err
	}
	var out envelope[[]Product]
	if err := c.do(ctx, c.reads, "list_products", req, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []Product{}, nil
	}
	return out.Data, nil
}

// LookupClient resolves a customer by the identifier typed at the terminal
// (national id, phone or email, as the backend accepts it).
func (c *Client) LookupClient(ctx context.Context, identifier string) (Customer, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Customer{}, fmt.Errorf("lookup client: %w", ErrClientNotFound)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/clients/lookup", url.Values{"identifier": {identifier}}, nil)
	if err != nil {
		return Customer{}, err
	}
	var out envelope[Customer]
	if err := c.do(ctx, c.reads, "lookup_client", req, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Customer{}, fmt.Errorf("%s: %w", apiErr.Message, ErrClientNotFound)
		}
		return Customer{}, err
	}
	if out.Data.ID == "" {
		return Customer{}, ErrClientNotFound
	}
	return out.Data, nil
}
