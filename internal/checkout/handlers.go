package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/proride-store/internal/cart"
	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/gift"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/payment"
	"github.com/noah-isme/proride-store/internal/pricing"
	"github.com/noah-isme/proride-store/internal/shipping"
	"github.com/noah-isme/proride-store/internal/voucher"
)

// View is the session as returned to clients, with derived totals.
type View struct {
	Session
	Summary          pricing.Summary `json:"summary"`
	Gifts            []gift.Grant    `json:"gifts"`
	RequiresGiftSize bool            `json:"requiresGiftSize"`
}

// NewView derives the client view of sess.
func NewView(sess Session) View {
	return View{
		Session:          sess,
		Summary:          sess.Summary(),
		Gifts:            sess.Gifts(),
		RequiresGiftSize: gift.RequiresSizeSelection(sess.Items()),
	}
}

type Handler struct {
	Svc *Service
}

type itemRequest struct {
	Code string `json:"code" validate:"required"`
}

type quoteRequest struct {
	Postcode string `json:"postcode"`
}

type selectRequest struct {
	ServiceID string `json:"serviceId" validate:"required"`
}

type voucherRequest struct {
	Code string `json:"code" validate:"required"`
}

type sizeRequest struct {
	Size string `json:"size" validate:"required"`
}

type simulateRequest struct {
	Success bool `json:"success"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.Svc.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, NewView(sess))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	respond(w, sess, err)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "id"), req.Code)
	respond(w, sess, err)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineId"))
	respond(w, sess, err)
}

func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.Svc.BeginCheckout(r.Context(), chi.URLParam(r, "id"))
	respond(w, sess, err)
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req order.Customer
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Svc.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	respond(w, sess, err)
}

func (h *Handler) QuoteShipping(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req quoteRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Svc.QuoteShipping(r.Context(), chi.URLParam(r, "id"), req.Postcode)
	respond(w, sess, err)
}

func (h *Handler) SelectCourier(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.SelectCourier(r.Context(), chi.URLParam(r, "id"), req.ServiceID)
	respond(w, sess, err)
}

func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req voucherRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.ApplyVoucher(r.Context(), chi.URLParam(r, "id"), req.Code)
	respond(w, sess, err)
}

func (h *Handler) RemoveVoucher(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.Svc.RemoveVoucher(r.Context(), chi.URLParam(r, "id"))
	respond(w, sess, err)
}

func (h *Handler) GiftSizes(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	opts, err := h.Svc.GiftSizes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, opts)
}

func (h *Handler) SelectGiftSize(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req sizeRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.SelectGiftSize(r.Context(), chi.URLParam(r, "id"), req.Size)
	respond(w, sess, err)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sess, err := h.Svc.PlaceOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, NewView(sess))
}

func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req simulateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Svc.CompleteSimulation(r.Context(), chi.URLParam(r, "id"), req.Success)
	respond(w, sess, err)
}

// Return handles the gateway redirect: ?status_id=&billcode=&order_id=.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q := r.URL.Query()
	sess, err := h.Svc.HandleReturn(r.Context(), chi.URLParam(r, "id"), q.Get("status_id"), q.Get("billcode"))
	respond(w, sess, err)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, sess Session, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(sess))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := common.ValidateStruct(dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	return true
}

// StatusFor maps checkout errors onto HTTP status and error code.
func StatusFor(err error) (int, string, bool) {
	if status, code, ok := voucher.StatusFor(err); ok {
		return status, code, true
	}
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, cart.ErrLineNotFound), errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, "NOT_FOUND", true
	case errors.Is(err, cart.ErrOutOfStock):
		return http.StatusConflict, "OUT_OF_STOCK", true
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE", true
	case errors.Is(err, ErrQuoteSuperseded):
		return http.StatusConflict, "QUOTE_SUPERSEDED", true
	case errors.Is(err, ErrSessionBusy):
		return http.StatusConflict, "SESSION_BUSY", true
	case errors.Is(err, ErrCartEmpty),
		errors.Is(err, ErrCourierRequired),
		errors.Is(err, ErrUnknownCourier),
		errors.Is(err, ErrBillMismatch),
		errors.Is(err, shipping.ErrInvalidInput),
		errors.Is(err, gift.ErrSizeRequired),
		errors.Is(err, gift.ErrUnknownSize),
		errors.Is(err, gift.ErrSizeOutOfStock):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", true
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusBadGateway, "EXTERNAL_SERVICE", true
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
