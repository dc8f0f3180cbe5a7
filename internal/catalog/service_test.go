package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/catalog"
	"github.com/noah-isme/pos-terminal/internal/money"
)

type stubSource struct {
	products []backend.Product
	err      error
	calls    int
}

func (s *stubSource) ListProducts(context.Context) ([]backend.Product, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

func newService(t *testing.T, src *stubSource) *catalog.Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, err := catalog.NewService(catalog.ServiceConfig{Source: src, Cache: catalog.NewCache(client, time.Minute)})
	require.NoError(t, err)
	return svc
}

func bakery() []backend.Product {
	return []backend.Product{
		{ID: "p2", Name: "Marraqueta", UnitPrice: money.New(200), AvailableStock: 0},
		{ID: "p1", Name: "Croissant", UnitPrice: money.New(900), AvailableStock: 12},
		{ID: "p3", Name: "Pan de molde", UnitPrice: money.New(2500), AvailableStock: 3},
	}
}

func TestListIsCached(t *testing.T) {
	src := &stubSource{products: bakery()}
	svc := newService(t, src)

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	second, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, second, len(first))
	require.Equal(t, 1, src.calls)
	require.True(t, second[1].UnitPrice.Equal(money.New(900)))

	svc.Invalidate(context.Background())
	_, err = svc.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestListFallsBackToLastKnown(t *testing.T) {
	src := &stubSource{products: bakery()}
	svc := newService(t, src)

	_, err := svc.List(context.Background())
	require.NoError(t, err)
	svc.Invalidate(context.Background())

	src.err = backend.ErrUnavailable
	products, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	require.Equal(t, 2, src.calls)
}

func TestListWithoutFallbackFails(t *testing.T) {
	svc := newService(t, &stubSource{err: backend.ErrUnavailable})
	_, err := svc.List(context.Background())
	require.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestLookup(t *testing.T) {
	svc := newService(t, &stubSource{products: bakery()})

	product, stock, err := svc.Lookup(context.Background(), "p3")
	require.NoError(t, err)
	require.Equal(t, "Pan de molde", product.Name)
	require.Equal(t, 3, stock)

	_, _, err = svc.Lookup(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestFilter(t *testing.T) {
	items, total := catalog.Filter(bakery(), catalog.ListParams{InStock: true})
	require.Equal(t, 2, total)
	require.Equal(t, "Croissant", items[0].Name)

	items, total = catalog.Filter(bakery(), catalog.ListParams{Query: "PAN"})
	require.Equal(t, 1, total)
	require.Equal(t, "p3", items[0].ID)

	items, total = catalog.Filter(bakery(), catalog.ListParams{Page: 2, Limit: 2})
	require.Equal(t, 3, total)
	require.Len(t, items, 1)
	require.Equal(t, "Pan de molde", items[0].Name)
}

func TestProductsHandler(t *testing.T) {
	svc := newService(t, &stubSource{products: bakery()})
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	rec := httptest.NewRecorder()
	handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?in_stock=true&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	var body struct {
		Data []backend.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "Croissant", body.Data[0].Name)
}
