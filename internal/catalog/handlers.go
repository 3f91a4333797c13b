package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/inventory"
)

// StockReader supplies current stock levels.
type StockReader interface {
	Levels(ctx context.Context) inventory.Levels
}

// CartCounter reports how many units of each code a session holds in its cart.
type CartCounter interface {
	CartCounts(ctx context.Context, sessionID string) (map[string]int, error)
}

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
	stock   StockReader
	carts   CartCounter
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Stock   StockReader
	Carts   CartCounter
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, stock: cfg.Stock, carts: cfg.Carts}
}

// ProductView is a product with its live availability.
type ProductView struct {
	Product
	Stock     int    `json:"stock"`
	Available int    `json:"available"`
	LowStock  bool   `json:"lowStock"`
	ImageURL  string `json:"imageUrl"`
}

// Models handles GET /api/v1/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	rows, err := h.service.Models(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// Variants handles GET /api/v1/models/{model}/variants.
func (h *Handler) Variants(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	model, err := url.PathUnescape(chi.URLParam(r, "model"))
	if err != nil {
		h.writeError(w, common.ValidationError("invalid model", err, map[string]string{"model": "invalid"}))
		return
	}
	variants, err := h.service.Variants(r.Context(), model)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, variants)
}

// Products handles GET /api/v1/products?model=&variant=&session=.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	q := r.URL.Query()
	ctx := r.Context()
	products, err := h.service.Products(ctx, q.Get("model"), q.Get("variant"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	levels := inventory.Levels{}
	if h.stock != nil {
		levels = h.stock.Levels(ctx)
	}
	held := map[string]int{}
	if sessionID := strings.TrimSpace(q.Get("session")); sessionID != "" && h.carts != nil {
		if counts, err := h.carts.CartCounts(ctx, sessionID); err == nil {
			held = counts
		}
	}
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		available := levels.Available(p.Code, held[p.Code])
		views = append(views, ProductView{
			Product:   p,
			Stock:     levels.Of(p.Code),
			Available: available,
			LowStock:  inventory.LowStock(available),
			ImageURL:  h.service.ImageURL(ctx, p.Model, p.Variant),
		})
	}
	common.Data(w, http.StatusOK, views)
}

// Image handles GET /api/v1/images?model=&variant=.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	q := r.URL.Query()
	model := strings.TrimSpace(q.Get("model"))
	variant := strings.TrimSpace(q.Get("variant"))
	if model == "" || variant == "" {
		h.writeError(w, common.ValidationError("model and variant are required", nil, map[string]string{"model": "required", "variant": "required"}))
		return
	}
	common.Data(w, http.StatusOK, map[string]string{
		"key": ImageKey(model, variant),
		"url": h.service.ImageURL(r.Context(), model, variant),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	default:
		common.WriteError(w, err)
	}
}
