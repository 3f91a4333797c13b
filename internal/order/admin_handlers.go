package order

import (
	"net/http"
	"strconv"

	"github.com/noah-isme/proride-store/internal/common"
)

// AdminHandler provides administrative order endpoints.
type AdminHandler struct {
	Store Store
}

// List handles GET /api/v1/admin/orders?limit=.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be a positive integer", nil)
			return
		}
		if n > 200 {
			n = 200
		}
		limit = n
	}
	orders, err := h.Store.ListOrders(r.Context(), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	common.Data(w, http.StatusOK, orders)
}
