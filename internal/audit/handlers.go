package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/pos-terminal/internal/common"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler exposes the sale journal to administrators.
type Handler struct {
	Service Service
}

// List handles GET /api/v1/pos/{terminalID}/journal.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Service.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "sale journal not configured", nil)
		return
	}
	page := common.ParsePage(r, defaultPageSize, maxPageSize)
	entries, err := h.Service.List(r.Context(), ListParams{
		TerminalID: chi.URLParam(r, "terminalID"),
		Limit:      page.Size,
		Offset:     page.Offset(),
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch sale journal", nil)
		return
	}
	common.DataWith(w, http.StatusOK, entries, map[string]any{
		"pagination": map[string]int{"page": page.Number, "per_page": page.Size},
	})
}
