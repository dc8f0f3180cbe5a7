// Package catalog serves product availability to terminals. The backend's
// list is cached briefly in Redis; stock figures are advisory ceilings for
// cart edits and the backend re-checks them on submission. When the backend
// is unreachable the last known list is served instead.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/cart"
	"github.com/noah-isme/pos-terminal/internal/common"
	"github.com/noah-isme/pos-terminal/internal/obs"
)

// ErrProductNotFound is returned when a product id is not in the availability list.
var ErrProductNotFound = errors.New("catalog: product not found")

// Source fetches availability from the backend.
type Source interface {
	ListProducts(ctx context.Context) ([]backend.Product, error)
}

// ServiceConfig configures the Service dependencies.
type ServiceConfig struct {
	Source Source
	Cache  *Cache
	Logger *zerolog.Logger
}

// Service answers product availability queries.
type Service struct {
	source Source
	cache  *Cache
	now    func() time.Time
	logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Service{source: cfg.Source, cache: cfg.Cache, now: time.Now, logger: logger}, nil
}

// List returns the availability list, from cache when fresh. A backend
// failure falls back to the last known list when one is cached.
func (s *Service) List(ctx context.Context) ([]backend.Product, error) {
	snap, ok, err := s.cache.fresh(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_read_failed")
	}
	if ok {
		obs.ObserveCatalogCache("hit")
		return snap.Products, nil
	}
	obs.ObserveCatalogCache("miss")

	products, err := s.source.ListProducts(ctx)
	if err != nil {
		if last, found, _ := s.cache.lastKnown(ctx); found {
			obs.ObserveCatalogCache("last_known")
			s.logger.Warn().Err(err).Time("fetched_at", last.FetchedAt).Msg("catalog_served_last_known")
			return last.Products, nil
		}
		return nil, fmt.Errorf("list products: %w", err)
	}
	if err := s.cache.store(ctx, products, s.now()); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_write_failed")
	}
	return products, nil
}

// Lookup returns the product with productID and its available stock.
func (s *Service) Lookup(ctx context.Context, productID string) (cart.Product, int, error) {
	products, err := s.List(ctx)
	if err != nil {
		return cart.Product{}, 0, err
	}
	for _, p := range products {
		if p.ID == productID {
			return cart.Product{ID: p.ID, Name: p.Name, UnitPrice: p.UnitPrice}, p.AvailableStock, nil
		}
	}
	return cart.Product{}, 0, common.NewAppError("PRODUCT_NOT_FOUND", "product not found", http.StatusNotFound, ErrProductNotFound)
}

// Invalidate drops the cached list so the next read sees post-sale stock.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.expire(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_invalidate_failed")
	}
}

// ListParams filters the availability list.
type ListParams struct {
	Query   string
	InStock bool
	Page    int
	Limit   int
}

// Filter applies params to products, sorted by name.
func Filter(products []backend.Product, params ListParams) ([]backend.Product, int) {
	query := strings.ToLower(strings.TrimSpace(params.Query))
	out := make([]backend.Product, 0, len(products))
	for _, p := range products {
		if params.InStock && p.AvailableStock <= 0 {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if params.Limit <= 0 {
		return out, total
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * params.Limit
	if start >= total {
		return []backend.Product{}, total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}
	return out[start:end], total
}
