package inventory

import (
	"net/http"

	"github.com/noah-isme/proride-store/internal/common"
)

// Handler exposes the public stock view.
type Handler struct {
	Service *Service
}

// Levels handles GET /api/v1/stock.
func (h Handler) Levels(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "inventory service not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.Service.Levels(r.Context()))
}
