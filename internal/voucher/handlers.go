package voucher

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/proride-store/internal/common"
)

// Handler exposes administrative voucher management endpoints.
type Handler struct {
	Svc *Service
}

// List handles GET /api/v1/admin/vouchers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	rows, err := h.Svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// Create handles POST /api/v1/admin/vouchers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	var payload CreateInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	created, err := h.Svc.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, created)
}

// Delete handles DELETE /api/v1/admin/vouchers/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps voucher errors onto their HTTP status and code.
func StatusFor(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ErrVoucherNotFound):
		return http.StatusNotFound, "VOUCHER_NOT_FOUND", true
	case errors.Is(err, ErrVoucherExpired):
		return http.StatusGone, "VOUCHER_EXPIRED", true
	case errors.Is(err, ErrDuplicateCode):
		return http.StatusConflict, "CONFLICT", true
	}
	return 0, "", false
}

func writeError(w http.ResponseWriter, err error) {
	if status, code, ok := StatusFor(err); ok {
		common.JSONError(w, status, code, err.Error(), nil)
		return
	}
	common.WriteError(w, err)
}
