package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/common"
)

// Handler exposes HTTP handlers for terminal login, logout and the current session.
type Handler struct {
	Service *Service
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionView struct {
	SessionID        string    `json:"session_id"`
	Employee         Employee  `json:"employee"`
	ExpiresAt        time.Time `json:"expires_at"`
	CanApplyDiscount bool      `json:"can_apply_discount"`
}

func viewOf(s Session) sessionView {
	return sessionView{
		SessionID:        s.ID,
		Employee:         s.Employee,
		ExpiresAt:        s.ExpiresAt.UTC(),
		CanApplyDiscount: s.CanApplyDiscount(),
	}
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.Service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, viewOf(sess))
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	sess, ok := FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	if err := h.Service.Logout(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	common.Data(w, http.StatusOK, viewOf(sess))
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := common.AsAppError(err); ok {
		common.WriteAppError(w, appErr)
		return
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		common.JSONError(w, status, "BACKEND_ERROR", apiErr.Message, nil)
		return
	}
	common.JSONError(w, http.StatusBadGateway, "BACKEND_UNAVAILABLE", "backend unavailable", nil)
}
