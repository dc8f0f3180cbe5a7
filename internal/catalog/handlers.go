package catalog

import (
	"net/http"
	"strconv"

	"github.com/noah-isme/pos-terminal/internal/common"
)

const (
	defaultPerPage = 100
	maxPerPage     = 500
)

// Handler exposes product availability endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Products handles GET /api/v1/products with name search, stock filter and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	products, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	page := common.ParsePage(r, defaultPerPage, maxPerPage)
	inStock, _ := strconv.ParseBool(r.URL.Query().Get("in_stock"))
	items, total := Filter(products, ListParams{
		Query:   r.URL.Query().Get("q"),
		InStock: inStock,
		Page:    page.Number,
		Limit:   page.Size,
	})
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.DataWith(w, http.StatusOK, items, map[string]any{"pagination": page.Meta(total)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if appErr, ok := common.AsAppError(err); ok {
		common.WriteAppError(w, appErr)
		return
	}
	common.JSONError(w, http.StatusBadGateway, "BACKEND_UNAVAILABLE", "product availability unavailable", map[string]any{"error": err.Error()})
}
