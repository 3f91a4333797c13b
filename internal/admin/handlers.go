package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/gift"
	"github.com/noah-isme/proride-store/internal/inventory"
)

// StockManager reads and overwrites stock levels.
type StockManager interface {
	Levels(ctx context.Context) inventory.Levels
	Set(ctx context.Context, code string, qty int) error
}

// SeedResult summarises a catalog seed run.
type SeedResult struct {
	Models   int `json:"models"`
	Images   int `json:"images"`
	Products int `json:"products"`
	Stock    int `json:"stockInserted"`
}

// Seeder loads the reference catalog into the store.
type Seeder interface {
	Seed(ctx context.Context) (SeedResult, error)
}

// CacheInvalidator drops cached catalog views after a seed.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string)
}

// Handler serves the admin console endpoints.
type Handler struct {
	Auth    Authenticator
	Tokens  *Tokens
	Stock   StockManager
	Seeder  Seeder
	Catalog CacheInvalidator
	Logger  zerolog.Logger
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type stockRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

// StockRow is one line of the admin stock table.
type StockRow struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

// Login handles POST /api/v1/admin/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Auth == nil || h.Tokens == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "admin login not configured", nil)
		return
	}
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if !h.Auth.Authenticate(req.Password) {
		h.Logger.Warn().Str("ip", common.ClientIP(r)).Msg("admin login rejected")
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid password", nil)
		return
	}
	token, exp, err := h.Tokens.Issue()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp})
}

// ListStock handles GET /api/v1/admin/stock.
func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	if h.Stock == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "stock not configured", nil)
		return
	}
	levels := h.Stock.Levels(r.Context())
	rows := make([]StockRow, 0, len(levels))
	for code, qty := range levels {
		rows = append(rows, StockRow{Code: code, Quantity: qty})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	common.Data(w, http.StatusOK, rows)
}

// SetStock handles PUT /api/v1/admin/stock/{code}.
func (h *Handler) SetStock(w http.ResponseWriter, r *http.Request) {
	h.setStock(w, r, chi.URLParam(r, "code"))
}

// SetGiftStock handles PUT /api/v1/admin/gifts/{size}.
func (h *Handler) SetGiftStock(w http.ResponseWriter, r *http.Request) {
	size := gift.NormalizeSize(chi.URLParam(r, "size"))
	if !gift.KnownSize(size) {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", gift.ErrUnknownSize.Error(), map[string]string{"size": "oneof"})
		return
	}
	h.setStock(w, r, gift.ShirtCode(size))
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request, code string) {
	if h.Stock == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "stock not configured", nil)
		return
	}
	var req stockRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Stock.Set(r.Context(), code, *req.Quantity); err != nil {
		common.WriteError(w, err)
		return
	}
	h.Logger.Info().Str("admin", actor(r)).Str("code", code).Int("quantity", *req.Quantity).Msg("stock updated")
	common.Data(w, http.StatusOK, StockRow{Code: code, Quantity: *req.Quantity})
}

// Seed handles POST /api/v1/admin/seed.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	if h.Seeder == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "seeder not configured", nil)
		return
	}
	res, err := h.Seeder.Seed(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("catalog seed failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "seed failed", nil)
		return
	}
	if h.Catalog != nil {
		h.Catalog.Invalidate(r.Context())
	}
	h.Logger.Info().Str("admin", actor(r)).Int("products", res.Products).Int("stock_inserted", res.Stock).Msg("catalog seeded")
	common.Data(w, http.StatusOK, res)
}

func actor(r *http.Request) string {
	if subject, ok := common.AdminSubject(r.Context()); ok {
		return subject
	}
	return "unknown"
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := common.ValidateStruct(dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	return true
}
