package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/cache"
	"github.com/noah-isme/proride-store/internal/cart"
	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/gift"
	"github.com/noah-isme/proride-store/internal/inventory"
	"github.com/noah-isme/proride-store/internal/lock"
	"github.com/noah-isme/proride-store/internal/obs"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/payment"
	"github.com/noah-isme/proride-store/internal/pricing"
	"github.com/noah-isme/proride-store/internal/shipping"
	"github.com/noah-isme/proride-store/internal/voucher"
)

// ProductFinder resolves catalog products by code.
type ProductFinder interface {
	Product(ctx context.Context, code string) (catalog.Product, error)
}

// StockReader supplies current stock levels.
type StockReader interface {
	Levels(ctx context.Context) inventory.Levels
}

// VoucherValidator checks voucher codes.
type VoucherValidator interface {
	Validate(ctx context.Context, code string) (voucher.Voucher, error)
}

// Config wires the checkout service.
type Config struct {
	Sessions  *SessionStore
	Locker    lock.Locker
	LockTTL   time.Duration
	Catalog   ProductFinder
	Stock     StockReader
	Vouchers  VoucherValidator
	Shipping  shipping.Client
	Recorder  order.Recorder
	Settler   order.Settler
	Gateway   payment.Gateway
	Simulator payment.Simulator
	// ReturnURL builds the gateway return address for a session.
	ReturnURL   func(sessionID string) string
	CallbackURL string
	Metrics     *obs.CheckoutInstruments
	Logger      zerolog.Logger
	Now         func() time.Time
	NewID       func() string
}

// Service runs the checkout state machine. Every mutation of a session is
// serialised with a per-session Redis lock.
type Service struct {
	sessions    *SessionStore
	locker      lock.Locker
	lockTTL     time.Duration
	catalog     ProductFinder
	stock       StockReader
	vouchers    VoucherValidator
	rates       shipping.Client
	recorder    order.Recorder
	settler     order.Settler
	gateway     payment.Gateway
	simulator   payment.Simulator
	returnURL   func(string) string
	callbackURL string
	metrics     *obs.CheckoutInstruments
	logger      zerolog.Logger
	now         func() time.Time
	newID       func() string
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("checkout: session store is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("checkout: catalog is required")
	}
	if cfg.Stock == nil {
		return nil, errors.New("checkout: stock reader is required")
	}
	if cfg.Shipping == nil {
		cfg.Shipping = shipping.Engine{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.ReturnURL == nil {
		cfg.ReturnURL = func(string) string { return "" }
	}
	return &Service{
		sessions:    cfg.Sessions,
		locker:      cfg.Locker,
		lockTTL:     cfg.LockTTL,
		catalog:     cfg.Catalog,
		stock:       cfg.Stock,
		vouchers:    cfg.Vouchers,
		rates:       cfg.Shipping,
		recorder:    cfg.Recorder,
		settler:     cfg.Settler,
		gateway:     cfg.Gateway,
		simulator:   cfg.Simulator,
		returnURL:   cfg.ReturnURL,
		callbackURL: cfg.CallbackURL,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
		newID:       cfg.NewID,
	}, nil
}

// PaymentProvider names where bills are opened: the gateway's own name, or
// "simulated" when no gateway is wired.
func (s *Service) PaymentProvider() string {
	if s.gateway == nil {
		return "simulated"
	}
	if named, ok := s.gateway.(interface{ Provider() string }); ok {
		return named.Provider()
	}
	return "external"
}

// Create starts a new browsing session.
func (s *Service) Create(ctx context.Context) (Session, error) {
	now := s.now()
	sess := Session{ID: uuid.NewString(), State: StateBrowsing, CreatedAt: now, UpdatedAt: now}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return Session{}, err
	}
	s.logger.Debug().Str("session_id", sess.ID).Msg("checkout session created")
	return sess, nil
}

// Get loads a session.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.sessions.Get(ctx, id)
}

// CartCounts reports units per code in the session's cart.
func (s *Service) CartCounts(ctx context.Context, id string) (map[string]int, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Cart.Counts(), nil
}

// AddItem admits one unit of code into the cart. Adding after a completed
// purchase starts a new shopping round.
func (s *Service) AddItem(ctx context.Context, id, code string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if sess.State == StateSuccess {
			sess.Receipt = nil
			sess.Order = nil
			sess.Bill = nil
			sess.Persisted = false
			sess.moveTo(StateBrowsing)
		}
		if !sess.State.editable() {
			return ErrInvalidState
		}
		p, err := s.catalog.Product(ctx, code)
		if err != nil {
			return err
		}
		if err := cart.CanAdd(p, sess.Cart, s.stock.Levels(ctx)); err != nil {
			return err
		}
		sess.Cart.Add(p)
		sess.invalidateQuotes()
		sess.Error = ""
		return nil
	})
}

// RemoveItem drops a cart line. Emptying the cart returns to browsing.
func (s *Service) RemoveItem(ctx context.Context, id, lineID string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if !sess.State.editable() {
			return ErrInvalidState
		}
		if err := sess.Cart.Remove(lineID); err != nil {
			return err
		}
		sess.invalidateQuotes()
		if sess.Cart.Empty() {
			sess.moveTo(StateBrowsing)
		}
		return nil
	})
}

// BeginCheckout moves a non-empty cart to details entry.
func (s *Service) BeginCheckout(ctx context.Context, id string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		switch sess.State {
		case StateBrowsing:
		case StateDetailsEntry:
			return nil
		default:
			return ErrInvalidState
		}
		if sess.Cart.Empty() {
			return ErrCartEmpty
		}
		sess.moveTo(StateDetailsEntry)
		return nil
	})
}

// UpdateCustomer stores the buyer's details. Changing the postcode discards
// quotes and the courier choice.
func (s *Service) UpdateCustomer(ctx context.Context, id string, c order.Customer) (Session, error) {
	c = trimCustomer(c)
	return s.mutate(ctx, id, func(sess *Session) error {
		if !sess.State.quotable() {
			return ErrInvalidState
		}
		if c.Postcode != sess.Customer.Postcode {
			sess.invalidateQuotes()
		}
		sess.Customer = c
		sess.Error = ""
		return nil
	})
}

// QuoteShipping computes courier options for postcode, or the customer's
// postcode when empty. The rate call runs outside the session lock; if the
// session changed meanwhile the result is discarded with ErrQuoteSuperseded.
func (s *Service) QuoteShipping(ctx context.Context, id, postcode string) (Session, error) {
	postcode = strings.TrimSpace(postcode)
	var (
		seq int64
		req shipping.RateReq
	)
	if _, err := s.mutate(ctx, id, func(sess *Session) error {
		if !sess.State.quotable() {
			return ErrInvalidState
		}
		if postcode == "" {
			postcode = sess.Customer.Postcode
		}
		if !shipping.ValidPostcode(postcode) {
			return shipping.ErrInvalidPostcode
		}
		if sess.Cart.Empty() {
			return shipping.ErrEmptyCart
		}
		sess.Customer.Postcode = postcode
		sess.invalidateQuotes()
		seq = sess.QuoteSeq
		items := sess.Items()
		req = shipping.RateReq{Postcode: postcode, WeightKg: pricing.TotalWeight(items), ItemCount: len(items)}
		return nil
	}); err != nil {
		return Session{}, err
	}

	options, err := s.rates.Rates(ctx, req)
	if err != nil {
		return Session{}, err
	}

	return s.mutate(ctx, id, func(sess *Session) error {
		if sess.QuoteSeq != seq {
			s.logger.Debug().Str("session_id", id).Int64("seq", seq).Msg("discarding superseded shipping quote")
			return ErrQuoteSuperseded
		}
		sess.Quotes = options
		sess.QuotedPostcode = req.Postcode
		sess.moveTo(StateShippingQuoted)
		return nil
	})
}

// SelectCourier picks one of the current quotes.
func (s *Service) SelectCourier(ctx context.Context, id, serviceID string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if sess.State != StateShippingQuoted && sess.State != StateCourierSelected {
			return ErrInvalidState
		}
		opt, ok := shipping.Find(sess.Quotes, strings.TrimSpace(serviceID))
		if !ok {
			return ErrUnknownCourier
		}
		sess.Selected = &opt
		sess.moveTo(StateCourierSelected)
		return nil
	})
}

// ApplyVoucher validates code and replaces any voucher already applied. A
// rejected code leaves the session untouched.
func (s *Service) ApplyVoucher(ctx context.Context, id, code string) (Session, error) {
	if s.vouchers == nil {
		return Session{}, errors.New("voucher validator not configured")
	}
	return s.mutate(ctx, id, func(sess *Session) error {
		if !sess.State.editable() {
			return ErrInvalidState
		}
		v, err := s.vouchers.Validate(ctx, code)
		if err != nil {
			return err
		}
		sess.Voucher = &AppliedVoucher{Code: v.Code, Amount: v.Amount}
		return nil
	})
}

// RemoveVoucher clears the applied voucher.
func (s *Service) RemoveVoucher(ctx context.Context, id string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if !sess.State.editable() {
			return ErrInvalidState
		}
		sess.Voucher = nil
		return nil
	})
}

// GiftOptions describes the shirt size choice for a session.
type GiftOptions struct {
	Required bool     `json:"required"`
	Sizes    []string `json:"sizes"`
	Selected string   `json:"selected,omitempty"`
}

// GiftSizes lists shirt sizes that are in stock.
func (s *Service) GiftSizes(ctx context.Context, id string) (GiftOptions, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return GiftOptions{}, err
	}
	return GiftOptions{
		Required: gift.RequiresSizeSelection(sess.Items()),
		Sizes:    gift.SelectableSizes(s.stock.Levels(ctx)),
		Selected: sess.GiftSize,
	}, nil
}

// SelectGiftSize records the shirt size. The size must be known and in stock.
func (s *Service) SelectGiftSize(ctx context.Context, id, size string) (Session, error) {
	size = gift.NormalizeSize(size)
	return s.mutate(ctx, id, func(sess *Session) error {
		if !sess.State.editable() {
			return ErrInvalidState
		}
		switch {
		case size == "":
			return gift.ErrSizeRequired
		case !gift.KnownSize(size):
			return gift.ErrUnknownSize
		case s.stock.Levels(ctx).Of(gift.ShirtCode(size)) <= 0:
			return gift.ErrSizeOutOfStock
		}
		sess.GiftSize = size
		return nil
	})
}

// PlaceOrder finalises the session: it records the order, whose persistence
// outcome never blocks checkout, and opens a bill on the gateway. Without a
// working gateway the session continues in simulator mode.
func (s *Service) PlaceOrder(ctx context.Context, id string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		switch sess.State {
		case StateCourierSelected:
		case StateDetailsEntry, StateShippingQuoted:
			return ErrCourierRequired
		default:
			return ErrInvalidState
		}
		if sess.Cart.Empty() {
			return ErrCartEmpty
		}
		if err := common.ValidateStruct(sess.Customer); err != nil {
			return err
		}
		if sess.Selected == nil {
			return ErrCourierRequired
		}
		items := sess.Items()
		if err := gift.ValidateSize(items, sess.GiftSize, s.stock.Levels(ctx)); err != nil {
			return err
		}
		sess.moveTo(StateSubmitting)

		o := s.buildOrder(*sess)
		outcome := s.recorder.Record(ctx, o)
		s.metrics.OrderValue(ctx, o.Total)

		bill := s.openBill(ctx, sess.ID, o)
		sess.Order = &o
		sess.Persisted = outcome.Persisted()
		sess.Bill = &bill
		sess.Error = ""
		sess.moveTo(StateAwaitingGateway)
		s.logger.Info().
			Str("session_id", sess.ID).
			Str("order_id", o.ID).
			Int64("total", o.Total).
			Bool("persisted", sess.Persisted).
			Bool("simulated", bill.Simulated).
			Msg("order placed")
		return nil
	})
}

// CompleteSimulation resolves a simulated payment.
func (s *Service) CompleteSimulation(ctx context.Context, id string, success bool) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if sess.State != StateAwaitingGateway || sess.Bill == nil || !sess.Bill.Simulated {
			return ErrInvalidState
		}
		if success {
			s.settle(ctx, sess, sess.Bill.Code)
			return nil
		}
		s.fail(ctx, sess, "Payment was cancelled.")
		return nil
	})
}

// HandleReturn applies the gateway's return redirect. The redirect is not
// signed, so its status_id is only a hint: the session settles when the
// gateway's bill record or the callback-updated order says it is paid, stays
// awaiting_gateway while that is still pending, and fails on a confirmed or
// shopper-reported failure. A repeated success return for the same bill is a
// no-op.
func (s *Service) HandleReturn(ctx context.Context, id, statusID, billCode string) (Session, error) {
	statusID = strings.TrimSpace(statusID)
	billCode = strings.TrimSpace(billCode)
	return s.mutate(ctx, id, func(sess *Session) error {
		if sess.State == StateSuccess && sess.Receipt != nil && sess.Receipt.BillCode == billCode {
			return nil
		}
		if sess.State != StateAwaitingGateway || sess.Bill == nil || sess.Order == nil {
			return ErrInvalidState
		}
		if billCode != "" && billCode != sess.Bill.Code {
			return ErrBillMismatch
		}
		status, confirmed := s.confirmedStatus(ctx, sess, statusID)
		switch {
		case status == payment.StatusSuccess:
			s.settle(ctx, sess, sess.Bill.Code)
		case status == payment.StatusFailed && confirmed:
			s.fail(ctx, sess, "Payment was not completed.")
		case status == payment.StatusFailed:
			// The order row stays pending so a later signed callback can still settle it.
			s.reopen(sess, "Payment was not completed.")
		default:
			sess.Error = ""
			s.logger.Info().
				Str("session_id", sess.ID).
				Str("order_id", sess.Order.ID).
				Str("claimed_status", statusID).
				Msg("payment return awaiting confirmation")
		}
		return nil
	})
}

// confirmedStatus resolves the payment outcome from sources the shopper
// cannot forge. Only a failure may be taken from the redirect itself, and is
// then reported as unconfirmed.
func (s *Service) confirmedStatus(ctx context.Context, sess *Session, claimed string) (string, bool) {
	logger := s.logger.With().Str("session_id", sess.ID).Str("order_id", sess.Order.ID).Logger()
	if checker, ok := s.gateway.(payment.BillChecker); ok && !sess.Bill.Simulated {
		status, err := checker.BillStatus(ctx, sess.Bill.Code, sess.Order.ID)
		if err == nil {
			return status, true
		}
		logger.Warn().Err(err).Msg("bill status lookup failed")
	}
	if sess.Persisted && s.settler.Orders != nil {
		o, err := s.settler.Orders.GetOrder(ctx, sess.Order.ID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("order status lookup failed")
		case o.Status == order.StatusPaid:
			return payment.StatusSuccess, true
		case o.Status == order.StatusFailed:
			return payment.StatusFailed, true
		}
	}
	if claimed == payment.StatusFailed {
		return payment.StatusFailed, false
	}
	return payment.StatusPending, false
}

func (s *Service) buildOrder(sess Session) order.Order {
	summary := sess.Summary()
	products := make([]catalog.Product, 0, sess.Cart.Len())
	for _, l := range sess.Cart.Lines {
		products = append(products, l.Product)
	}
	o := order.Order{
		ID:           s.newID(),
		Items:        products,
		ItemsSummary: order.ItemsSummary(products),
		Subtotal:     summary.Subtotal,
		Shipping:     summary.Shipping,
		Discount:     summary.Discount,
		Total:        summary.Total,
		CourierName:  sess.Selected.CourierName,
		ServiceType:  sess.Selected.ServiceType,
		Gifts:        sess.Gifts(),
		Customer:     sess.Customer,
		Status:       order.StatusPendingPayment,
		CreatedAt:    s.now(),
	}
	if sess.Voucher != nil {
		o.VoucherCode = sess.Voucher.Code
	}
	return o
}

func (s *Service) openBill(ctx context.Context, sessionID string, o order.Order) payment.Bill {
	req := payment.BillRequest{
		OrderID:     o.ID,
		Amount:      o.Total,
		ReturnURL:   s.returnURL(sessionID),
		CallbackURL: s.callbackURL,
		Customer:    o.Customer,
	}
	if s.gateway != nil {
		bill, err := s.gateway.CreateBill(ctx, req)
		if err == nil {
			return bill
		}
		s.logger.Warn().Err(err).Str("session_id", sessionID).Str("order_id", o.ID).Msg("payment gateway failed; using simulator")
	}
	bill, _ := s.simulator.CreateBill(ctx, req)
	return bill
}

func (s *Service) settle(ctx context.Context, sess *Session, billCode string) {
	o := *sess.Order
	s.settler.Settle(ctx, o, sess.Persisted, billCode)
	sess.Receipt = &Receipt{
		OrderID:      o.ID,
		BillCode:     billCode,
		ItemsSummary: o.ItemsSummary,
		Subtotal:     o.Subtotal,
		Shipping:     o.Shipping,
		Discount:     o.Discount,
		Total:        o.Total,
		CourierName:  o.CourierName,
		Gifts:        o.Gifts,
		PaidAt:       s.now(),
	}
	sess.Cart.Clear()
	sess.Voucher = nil
	sess.GiftSize = ""
	sess.invalidateQuotes()
	sess.Error = ""
	sess.moveTo(StateSuccess)
}

func (s *Service) fail(ctx context.Context, sess *Session, reason string) {
	if sess.Order != nil && sess.Persisted {
		s.settler.Fail(ctx, sess.Order.ID)
	}
	s.reopen(sess, reason)
}

// reopen drops the attempt and returns the session to courier_selected.
func (s *Service) reopen(sess *Session, reason string) {
	sess.moveTo(StateFailed)
	sess.Order = nil
	sess.Bill = nil
	sess.Persisted = false
	sess.Error = reason
	sess.moveTo(StateCourierSelected)
}

// mutate loads the session under its lock, applies fn and saves the result.
// Nothing is saved when fn fails.
func (s *Service) mutate(ctx context.Context, id string, fn func(*Session) error) (Session, error) {
	var out Session
	err := s.locker.WithLock(ctx, cache.KeySessionLock(id), s.lockTTL, func(ctx context.Context) error {
		sess, err := s.sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		sess.UpdatedAt = s.now()
		if err := s.sessions.Save(ctx, sess); err != nil {
			return err
		}
		for _, t := range sess.trail {
			s.metrics.Transition(ctx, string(t.from), string(t.to))
			s.logger.Debug().Str("session_id", id).Str("from", string(t.from)).Str("to", string(t.to)).Msg("checkout transition")
		}
		sess.trail = nil
		out = sess
		return nil
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return Session{}, ErrSessionBusy
	}
	return out, err
}

func trimCustomer(c order.Customer) order.Customer {
	return order.Customer{
		Name:     strings.TrimSpace(c.Name),
		Email:    strings.TrimSpace(c.Email),
		Phone:    strings.TrimSpace(c.Phone),
		Address:  strings.TrimSpace(c.Address),
		Postcode: strings.TrimSpace(c.Postcode),
	}
}
