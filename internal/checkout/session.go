package checkout

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/proride-store/internal/cache"
	"github.com/noah-isme/proride-store/internal/cart"
	"github.com/noah-isme/proride-store/internal/gift"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/payment"
	"github.com/noah-isme/proride-store/internal/pricing"
	"github.com/noah-isme/proride-store/internal/shipping"
)

// State is a checkout session step.
type State string

const (
	StateBrowsing        State = "browsing"
	StateDetailsEntry    State = "details_entry"
	StateShippingQuoted  State = "shipping_quoted"
	StateCourierSelected State = "courier_selected"
	StateSubmitting      State = "submitting"
	StateAwaitingGateway State = "awaiting_gateway"
	StateSuccess         State = "success"
	StateFailed          State = "failed"
)

// editable reports whether the cart and selections may still change.
func (s State) editable() bool {
	switch s {
	case StateBrowsing, StateDetailsEntry, StateShippingQuoted, StateCourierSelected:
		return true
	}
	return false
}

// quotable reports whether shipping may be quoted from this state.
func (s State) quotable() bool {
	switch s {
	case StateDetailsEntry, StateShippingQuoted, StateCourierSelected:
		return true
	}
	return false
}

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrInvalidState    = errors.New("operation not allowed in the current checkout state")
	ErrQuoteSuperseded = errors.New("shipping quote superseded by a newer request")
	ErrCartEmpty       = errors.New("cart is empty")
	ErrCourierRequired = errors.New("courier must be selected")
	ErrUnknownCourier  = errors.New("courier option not in current quote")
	ErrBillMismatch    = errors.New("bill code does not match the session")
	ErrSessionBusy     = errors.New("checkout session is busy")
)

// AppliedVoucher is the voucher attached to a session.
type AppliedVoucher struct {
	Code   string        `json:"code"`
	Amount pricing.Money `json:"amount"`
}

// Receipt is shown after a successful payment.
type Receipt struct {
	OrderID      string        `json:"orderId"`
	BillCode     string        `json:"billCode"`
	ItemsSummary string        `json:"itemsSummary"`
	Subtotal     pricing.Money `json:"subtotal"`
	Shipping     pricing.Money `json:"shipping"`
	Discount     pricing.Money `json:"discount"`
	Total        pricing.Money `json:"total"`
	CourierName  string        `json:"courierName"`
	Gifts        []gift.Grant  `json:"gifts"`
	PaidAt       time.Time     `json:"paidAt"`
}

// Session owns a shopper's cart, details and selections.
type Session struct {
	ID             string            `json:"id"`
	State          State             `json:"state"`
	Cart           cart.Cart         `json:"cart"`
	Customer       order.Customer    `json:"customer"`
	Quotes         []shipping.Option `json:"quotes"`
	QuotedPostcode string            `json:"quotedPostcode,omitempty"`
	QuoteSeq       int64             `json:"quoteSeq"`
	Selected       *shipping.Option  `json:"selected,omitempty"`
	Voucher        *AppliedVoucher   `json:"voucher,omitempty"`
	GiftSize       string            `json:"giftSize,omitempty"`
	Order          *order.Order      `json:"order,omitempty"`
	Persisted      bool              `json:"persisted"`
	Bill           *payment.Bill     `json:"bill,omitempty"`
	Receipt        *Receipt          `json:"receipt,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`

	trail []transition
}

type transition struct{ from, to State }

func (s *Session) moveTo(to State) {
	if s.State == to {
		return
	}
	s.trail = append(s.trail, transition{from: s.State, to: to})
	s.State = to
}

// invalidateQuotes drops quotes and the courier choice. Any in-flight quote
// is superseded and a quoted session falls back to details entry.
func (s *Session) invalidateQuotes() {
	s.QuoteSeq++
	s.Quotes = nil
	s.QuotedPostcode = ""
	s.Selected = nil
	if s.State == StateShippingQuoted || s.State == StateCourierSelected {
		s.moveTo(StateDetailsEntry)
	}
}

// Items returns the pricing view of the cart.
func (s Session) Items() []pricing.Item { return s.Cart.Items() }

// Summary computes the running totals of the session.
func (s Session) Summary() pricing.Summary {
	items := s.Items()
	subtotal := pricing.Subtotal(items)
	var shippingCost, discount pricing.Money
	if s.Selected != nil {
		shippingCost = s.Selected.Price
	}
	if s.Voucher != nil {
		discount = s.Voucher.Amount
	}
	return pricing.Summary{
		Subtotal: subtotal,
		Shipping: shippingCost,
		Discount: discount,
		Total:    pricing.FinalTotal(subtotal, shippingCost, discount),
		WeightKg: pricing.TotalWeight(items),
	}
}

// Gifts returns the gifts the session currently qualifies for.
func (s Session) Gifts() []gift.Grant { return gift.GiftsFor(s.Items(), s.GiftSize) }

// SessionStore keeps sessions as JSON documents in Redis. Every save extends
// the expiry.
type SessionStore struct {
	docs *cache.JSON
}

// NewSessionStore constructs a store with the given idle expiry.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{docs: cache.NewJSON(client, ttl)}
}

// Get loads a session.
func (st *SessionStore) Get(ctx context.Context, id string) (Session, error) {
	var sess Session
	found, err := st.docs.GetJSON(ctx, cache.KeySession(id), &sess)
	if err != nil {
		return Session{}, err
	}
	if !found {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Save stores a session.
func (st *SessionStore) Save(ctx context.Context, sess Session) error {
	return st.docs.SetJSON(ctx, cache.KeySession(sess.ID), sess)
}
