package checkout_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proride-store/internal/cart"
	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/checkout"
	"github.com/noah-isme/proride-store/internal/common"
	"github.com/noah-isme/proride-store/internal/gift"
	"github.com/noah-isme/proride-store/internal/inventory"
	"github.com/noah-isme/proride-store/internal/lock"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/order/ordertest"
	"github.com/noah-isme/proride-store/internal/payment"
	"github.com/noah-isme/proride-store/internal/shipping"
	"github.com/noah-isme/proride-store/internal/voucher"
)

var (
	fullSet = catalog.Product{Code: "SAST", Model: "SAGA/ISWARA", Variant: "STANDARD", Position: "1SET", QuantityPerSet: 4, Price: 47320}
	front   = catalog.Product{Code: "SAFST", Model: "SAGA/ISWARA", Variant: "STANDARD", Position: "FRONT", QuantityPerSet: 2, Price: 29380}
	now     = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
)

type fakeCatalog map[string]catalog.Product

func (f fakeCatalog) Product(_ context.Context, code string) (catalog.Product, error) {
	p, ok := f[code]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

type memStock struct {
	mu     sync.Mutex
	levels inventory.Levels
}

func (m *memStock) Levels(context.Context) inventory.Levels {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels.Clone()
}

func (m *memStock) Decrement(_ context.Context, code string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels[code] > 0 {
		m.levels[code]--
	}
	return m.levels[code], nil
}

func (m *memStock) of(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[code]
}

type memVouchers struct {
	mu       sync.Mutex
	vouchers map[string]voucher.Voucher
}

func (m *memVouchers) put(v voucher.Voucher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vouchers[v.Code] = v
}

func (m *memVouchers) GetActiveVoucherByCode(_ context.Context, code string) (voucher.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[code]
	if !ok || !v.Active {
		return voucher.Voucher{}, voucher.ErrVoucherNotFound
	}
	return v, nil
}

func (m *memVouchers) ListVouchers(context.Context) ([]voucher.Voucher, error) { return nil, nil }

func (m *memVouchers) CreateVoucher(_ context.Context, v voucher.Voucher) (voucher.Voucher, error) {
	m.put(v)
	return v, nil
}

func (m *memVouchers) DeleteVoucher(context.Context, string) error { return nil }

type failingGateway struct{ calls int }

func (g *failingGateway) CreateBill(context.Context, payment.BillRequest) (payment.Bill, error) {
	g.calls++
	return payment.Bill{}, payment.ErrGatewayUnavailable
}

// hostedGateway opens real bills; checkedGateway also answers status lookups.
type hostedGateway struct {
	code string
}

func (g hostedGateway) CreateBill(context.Context, payment.BillRequest) (payment.Bill, error) {
	return payment.Bill{Code: g.code, RedirectURL: "https://pay.example/" + g.code}, nil
}

type checkedGateway struct {
	hostedGateway
	status string
}

func (g checkedGateway) BillStatus(context.Context, string, string) (string, error) {
	return g.status, nil
}

type harness struct {
	svc      *checkout.Service
	orders   *ordertest.Store
	stock    *memStock
	vouchers *memVouchers
	mr       *miniredis.Miniredis
}

type option func(*checkout.Config)

func withShipping(c shipping.Client) option {
	return func(cfg *checkout.Config) { cfg.Shipping = c }
}

func withGateway(g payment.Gateway) option {
	return func(cfg *checkout.Config) { cfg.Gateway = g }
}

func newHarness(t *testing.T, levels inventory.Levels, opts ...option) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		orders:   ordertest.New(),
		stock:    &memStock{levels: levels},
		vouchers: &memVouchers{vouchers: map[string]voucher.Voucher{}},
		mr:       mr,
	}
	cfg := checkout.Config{
		Sessions:  checkout.NewSessionStore(rdb, time.Hour),
		Locker:    lock.Locker{R: rdb, RetryBackoff: 2 * time.Millisecond, MaxWait: 5 * time.Second},
		Catalog:   fakeCatalog{fullSet.Code: fullSet, front.Code: front},
		Stock:     h.stock,
		Vouchers:  &voucher.Service{Q: h.vouchers, Now: func() time.Time { return now }},
		Shipping:  shipping.Engine{},
		Recorder:  order.Recorder{Store: h.orders},
		Settler:   order.Settler{Orders: h.orders, Stock: h.stock},
		Simulator: payment.Simulator{IntN: func(int) int { return 4242 }},
		Now:       func() time.Time { return now },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := checkout.NewService(cfg)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func defaultStock() inventory.Levels {
	return inventory.Levels{fullSet.Code: 5, front.Code: 5, gift.ShirtCode("M"): 3, gift.ShirtCode("L"): 0}
}

func customer(postcode string) order.Customer {
	return order.Customer{Name: "Aminah", Email: "aminah@example.com", Phone: "0123456789", Address: "1 Jalan Damai", Postcode: postcode}
}

// quoted drives a fresh session holding one full set up to shipping_quoted.
func (h *harness) quoted(t *testing.T, postcode string) checkout.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, sess.ID, fullSet.Code)
	require.NoError(t, err)
	_, err = h.svc.BeginCheckout(ctx, sess.ID)
	require.NoError(t, err)
	_, err = h.svc.UpdateCustomer(ctx, sess.ID, customer(postcode))
	require.NoError(t, err)
	sess, err = h.svc.QuoteShipping(ctx, sess.ID, "")
	require.NoError(t, err)
	require.Equal(t, checkout.StateShippingQuoted, sess.State)
	return sess
}

func TestOutlyingFullSetCheckoutGrantsShirt(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()

	sess := h.quoted(t, "88000")
	require.Len(t, sess.Quotes, 3)
	cheapest := sess.Quotes[0]
	require.Equal(t, "pos_sea", cheapest.ServiceID)
	require.EqualValues(t, 7500, cheapest.Price)

	_, err := h.svc.SelectCourier(ctx, sess.ID, cheapest.ServiceID)
	require.NoError(t, err)
	_, err = h.svc.SelectGiftSize(ctx, sess.ID, "m")
	require.NoError(t, err)

	sess, err = h.svc.PlaceOrder(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, checkout.StateAwaitingGateway, sess.State)
	require.NotNil(t, sess.Bill)
	require.True(t, sess.Bill.Simulated)
	require.Equal(t, "TP-MOCK-4242", sess.Bill.Code)
	require.True(t, sess.Persisted)
	require.EqualValues(t, 47320+7500, sess.Order.Total)
	require.Equal(t, []string{gift.Sticker, "Proride T-Shirt (M)"}, sess.Order.GiftNames())

	sess, err = h.svc.CompleteSimulation(ctx, sess.ID, true)
	require.NoError(t, err)
	require.Equal(t, checkout.StateSuccess, sess.State)
	require.NotNil(t, sess.Receipt)
	require.EqualValues(t, 54820, sess.Receipt.Total)
	require.Equal(t, "TP-MOCK-4242", sess.Receipt.BillCode)
	require.True(t, sess.Cart.Empty())
	require.Empty(t, sess.GiftSize)
	require.Nil(t, sess.Voucher)

	require.Equal(t, 4, h.stock.of(fullSet.Code))
	require.Equal(t, 2, h.stock.of(gift.ShirtCode("M")))

	stored, err := h.orders.GetOrder(ctx, sess.Receipt.OrderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, stored.Status)
	require.Equal(t, "TP-MOCK-4242", stored.BillCode)
}

func TestStandardZoneQuotesLandCouriersOnly(t *testing.T) {
	h := newHarness(t, defaultStock())

	sess := h.quoted(t, "40000")
	require.Len(t, sess.Quotes, 2)
	for _, q := range sess.Quotes {
		require.Equal(t, shipping.ServiceLand, q.ServiceType)
	}
	require.Equal(t, "jnt_land", sess.Quotes[0].ServiceID)
	require.EqualValues(t, 3800, sess.Quotes[0].Price)
	require.EqualValues(t, 3900, sess.Quotes[1].Price)
}

func TestVoucherOutsideWindowIsRejected(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	h.vouchers.put(voucher.Voucher{ID: "v1", Code: "SAVE50", Amount: 5000, Active: true,
		ValidFrom: now.Add(-24 * time.Hour), ValidTo: now.Add(24 * time.Hour)})

	sess := h.quoted(t, "40000")
	sess, err := h.svc.SelectCourier(ctx, sess.ID, "jnt_land")
	require.NoError(t, err)
	before := sess.Summary().Total

	sess, err = h.svc.ApplyVoucher(ctx, sess.ID, "save50")
	require.NoError(t, err)
	require.Equal(t, before-5000, sess.Summary().Total)

	sess, err = h.svc.RemoveVoucher(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, before, sess.Summary().Total)

	h.vouchers.put(voucher.Voucher{ID: "v1", Code: "SAVE50", Amount: 5000, Active: true,
		ValidFrom: now.Add(-72 * time.Hour), ValidTo: now.Add(-48 * time.Hour)})
	_, err = h.svc.ApplyVoucher(ctx, sess.ID, "SAVE50")
	require.ErrorIs(t, err, voucher.ErrVoucherExpired)

	sess, err = h.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, sess.Voucher)
	require.Equal(t, before, sess.Summary().Total)
}

func TestSecondVoucherReplacesFirst(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	window := func(v voucher.Voucher) voucher.Voucher {
		v.Active = true
		v.ValidFrom = now.Add(-24 * time.Hour)
		v.ValidTo = now.Add(24 * time.Hour)
		return v
	}
	h.vouchers.put(window(voucher.Voucher{ID: "v1", Code: "SAVE50", Amount: 5000}))
	h.vouchers.put(window(voucher.Voucher{ID: "v2", Code: "SAVE20", Amount: 2000}))

	sess := h.quoted(t, "40000")
	sess, err := h.svc.SelectCourier(ctx, sess.ID, "jnt_land")
	require.NoError(t, err)
	before := sess.Summary().Total

	sess, err = h.svc.ApplyVoucher(ctx, sess.ID, "SAVE50")
	require.NoError(t, err)
	require.EqualValues(t, 5000, sess.Summary().Discount)

	sess, err = h.svc.ApplyVoucher(ctx, sess.ID, "SAVE20")
	require.NoError(t, err)
	require.Equal(t, "SAVE20", sess.Voucher.Code)
	require.EqualValues(t, 2000, sess.Summary().Discount)
	require.Equal(t, before-2000, sess.Summary().Total)
}

func TestConcurrentAddsRespectStock(t *testing.T) {
	h := newHarness(t, inventory.Levels{front.Code: 1})
	ctx := context.Background()
	sess, err := h.svc.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.AddItem(ctx, sess.ID, front.Code)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, cart.ErrOutOfStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, rejected)

	sess, err = h.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, sess.Cart.Len())
}

func TestCartChangeAfterQuoteRevertsToDetails(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess := h.quoted(t, "40000")
	sess, err := h.svc.SelectCourier(ctx, sess.ID, "jnt_land")
	require.NoError(t, err)

	sess, err = h.svc.AddItem(ctx, sess.ID, front.Code)
	require.NoError(t, err)
	require.Equal(t, checkout.StateDetailsEntry, sess.State)
	require.Empty(t, sess.Quotes)
	require.Nil(t, sess.Selected)
}

func TestPostcodeChangeClearsSelection(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess := h.quoted(t, "40000")
	_, err := h.svc.SelectCourier(ctx, sess.ID, "jnt_land")
	require.NoError(t, err)

	sess, err = h.svc.UpdateCustomer(ctx, sess.ID, customer("40000"))
	require.NoError(t, err)
	require.Equal(t, checkout.StateCourierSelected, sess.State)

	sess, err = h.svc.UpdateCustomer(ctx, sess.ID, customer("88000"))
	require.NoError(t, err)
	require.Equal(t, checkout.StateDetailsEntry, sess.State)
	require.Nil(t, sess.Selected)
	require.Empty(t, sess.Quotes)
}

func TestRemovingLastItemReturnsToBrowsing(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess := h.quoted(t, "40000")

	sess, err := h.svc.RemoveItem(ctx, sess.ID, sess.Cart.Lines[0].LineID)
	require.NoError(t, err)
	require.Equal(t, checkout.StateBrowsing, sess.State)

	_, err = h.svc.RemoveItem(ctx, sess.ID, "missing")
	require.ErrorIs(t, err, cart.ErrLineNotFound)
}

type gatedRates struct {
	started chan struct{}
	release chan struct{}
}

func (g gatedRates) Rates(ctx context.Context, r shipping.RateReq) ([]shipping.Option, error) {
	close(g.started)
	<-g.release
	return shipping.Engine{}.Rates(ctx, r)
}

func TestLateQuoteIsDiscarded(t *testing.T) {
	gate := gatedRates{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, defaultStock(), withShipping(gate))
	ctx := context.Background()

	sess, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, sess.ID, fullSet.Code)
	require.NoError(t, err)
	_, err = h.svc.BeginCheckout(ctx, sess.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.QuoteShipping(ctx, sess.ID, "88000")
		done <- err
	}()
	<-gate.started
	_, err = h.svc.AddItem(ctx, sess.ID, front.Code)
	require.NoError(t, err)
	close(gate.release)

	require.ErrorIs(t, <-done, checkout.ErrQuoteSuperseded)
	sess, err = h.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, sess.Quotes)
	require.Equal(t, checkout.StateDetailsEntry, sess.State)
}

func TestQuoteRejectsBadPostcode(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, sess.ID, front.Code)
	require.NoError(t, err)
	_, err = h.svc.BeginCheckout(ctx, sess.ID)
	require.NoError(t, err)

	_, err = h.svc.QuoteShipping(ctx, sess.ID, "8800")
	require.ErrorIs(t, err, shipping.ErrInvalidPostcode)
	require.ErrorIs(t, err, shipping.ErrInvalidInput)
}

func TestBeginCheckoutNeedsItems(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.BeginCheckout(ctx, sess.ID)
	require.ErrorIs(t, err, checkout.ErrCartEmpty)
}

func TestPlaceOrderGates(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess := h.quoted(t, "40000")

	_, err := h.svc.PlaceOrder(ctx, sess.ID)
	require.ErrorIs(t, err, checkout.ErrCourierRequired)

	_, err = h.svc.SelectCourier(ctx, sess.ID, "dhl")
	require.ErrorIs(t, err, checkout.ErrUnknownCourier)
	_, err = h.svc.SelectCourier(ctx, sess.ID, "jnt_land")
	require.NoError(t, err)

	_, err = h.svc.PlaceOrder(ctx, sess.ID)
	require.ErrorIs(t, err, gift.ErrSizeRequired)

	_, err = h.svc.SelectGiftSize(ctx, sess.ID, "L")
	require.ErrorIs(t, err, gift.ErrSizeOutOfStock)
	_, err = h.svc.SelectGiftSize(ctx, sess.ID, "XS")
	require.ErrorIs(t, err, gift.ErrUnknownSize)

	bad := customer("40000")
	bad.Email = "not-an-email"
	_, err = h.svc.UpdateCustomer(ctx, sess.ID, bad)
	require.NoError(t, err)
	_, err = h.svc.SelectGiftSize(ctx, sess.ID, "M")
	require.NoError(t, err)

	_, err = h.svc.PlaceOrder(ctx, sess.ID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	require.Equal(t, map[string]string{"email": "email"}, appErr.Details)
	require.Zero(t, h.orders.Len())
}

func TestGiftSizesExcludeEmptyStock(t *testing.T) {
	h := newHarness(t, defaultStock())
	sess := h.quoted(t, "40000")

	opts, err := h.svc.GiftSizes(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, opts.Required)
	require.Equal(t, []string{"M"}, opts.Sizes)
}

// placed drives a session to awaiting_gateway on the standard zone.
func (h *harness) placed(t *testing.T) checkout.Session {
	t.Helper()
	ctx := context.Background()
	sess := h.quoted(t, "40000")
	_, err := h.svc.SelectCourier(ctx, sess.ID, "jnt_land")
	require.NoError(t, err)
	_, err = h.svc.SelectGiftSize(ctx, sess.ID, "M")
	require.NoError(t, err)
	sess, err = h.svc.PlaceOrder(ctx, sess.ID)
	require.NoError(t, err)
	return sess
}

func TestGatewayFailureFallsBackToSimulator(t *testing.T) {
	gw := &failingGateway{}
	h := newHarness(t, defaultStock(), withGateway(gw))

	sess := h.placed(t)
	require.Equal(t, 1, gw.calls)
	require.Equal(t, checkout.StateAwaitingGateway, sess.State)
	require.True(t, sess.Bill.Simulated)
	require.Equal(t, "TP-MOCK-4242", sess.Bill.Code)
}

func TestPersistenceFailureDoesNotBlockCheckout(t *testing.T) {
	h := newHarness(t, defaultStock())
	h.orders.InsertErr = errors.New("db down")

	sess := h.placed(t)
	require.False(t, sess.Persisted)
	require.Equal(t, checkout.StateAwaitingGateway, sess.State)

	sess, err := h.svc.CompleteSimulation(context.Background(), sess.ID, true)
	require.NoError(t, err)
	require.Equal(t, checkout.StateSuccess, sess.State)
	require.Equal(t, 4, h.stock.of(fullSet.Code))
}

func TestCancelledPaymentReturnsToCourierSelected(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess := h.placed(t)
	orderID := sess.Order.ID

	sess, err := h.svc.CompleteSimulation(ctx, sess.ID, false)
	require.NoError(t, err)
	require.Equal(t, checkout.StateCourierSelected, sess.State)
	require.NotEmpty(t, sess.Error)
	require.Equal(t, 1, sess.Cart.Len())
	require.Equal(t, 5, h.stock.of(fullSet.Code))

	stored, err := h.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusFailed, stored.Status)
}

func TestReturnAfterCallbackSettlesOnce(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess := h.placed(t)

	settler := order.Settler{Orders: h.orders, Stock: h.stock}
	require.True(t, settler.Settle(ctx, *sess.Order, true, sess.Bill.Code))
	require.Equal(t, 4, h.stock.of(fullSet.Code))

	sess, err := h.svc.HandleReturn(ctx, sess.ID, payment.StatusSuccess, sess.Bill.Code)
	require.NoError(t, err)
	require.Equal(t, checkout.StateSuccess, sess.State)
	require.Equal(t, 4, h.stock.of(fullSet.Code))

	again, err := h.svc.HandleReturn(ctx, sess.ID, payment.StatusSuccess, sess.Receipt.BillCode)
	require.NoError(t, err)
	require.Equal(t, checkout.StateSuccess, again.State)
}

func TestReturnRejectsForeignBill(t *testing.T) {
	h := newHarness(t, defaultStock())
	sess := h.placed(t)
	_, err := h.svc.HandleReturn(context.Background(), sess.ID, payment.StatusSuccess, "OTHER")
	require.ErrorIs(t, err, checkout.ErrBillMismatch)
}

func TestUnconfirmedSuccessReturnDoesNotSettle(t *testing.T) {
	h := newHarness(t, defaultStock(), withGateway(hostedGateway{code: "abc123"}))
	ctx := context.Background()
	sess := h.placed(t)
	require.False(t, sess.Bill.Simulated)
	orderID := sess.Order.ID

	sess, err := h.svc.HandleReturn(ctx, sess.ID, payment.StatusSuccess, "abc123")
	require.NoError(t, err)
	require.Equal(t, checkout.StateAwaitingGateway, sess.State)
	require.Nil(t, sess.Receipt)
	require.Equal(t, 5, h.stock.of(fullSet.Code))

	stored, err := h.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPendingPayment, stored.Status)
}

func TestPendingReturnThenPaidCallbackSettles(t *testing.T) {
	h := newHarness(t, defaultStock(), withGateway(hostedGateway{code: "abc123"}))
	ctx := context.Background()
	sess := h.placed(t)
	orderID := sess.Order.ID

	sess, err := h.svc.HandleReturn(ctx, sess.ID, payment.StatusPending, "abc123")
	require.NoError(t, err)
	require.Equal(t, checkout.StateAwaitingGateway, sess.State)

	cb := payment.Callback{
		Secret:  "secret",
		Orders:  h.orders,
		Settler: order.Settler{Orders: h.orders, Stock: h.stock},
	}
	form := url.Values{
		"refno":    {"TP1"},
		"status":   {payment.StatusSuccess},
		"billcode": {"abc123"},
		"order_id": {orderID},
		"hash":     {payment.CallbackHash("secret", payment.StatusSuccess, orderID, "TP1")},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/toyyibpay/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	cb.Handle(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := h.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, stored.Status)
	require.Equal(t, 4, h.stock.of(fullSet.Code))

	sess, err = h.svc.HandleReturn(ctx, sess.ID, payment.StatusSuccess, "abc123")
	require.NoError(t, err)
	require.Equal(t, checkout.StateSuccess, sess.State)
	require.Equal(t, 4, h.stock.of(fullSet.Code))
}

func TestReturnSettlesWhenGatewayConfirms(t *testing.T) {
	gw := checkedGateway{hostedGateway: hostedGateway{code: "abc123"}, status: payment.StatusSuccess}
	h := newHarness(t, defaultStock(), withGateway(gw))
	ctx := context.Background()
	sess := h.placed(t)
	orderID := sess.Order.ID

	sess, err := h.svc.HandleReturn(ctx, sess.ID, payment.StatusSuccess, "abc123")
	require.NoError(t, err)
	require.Equal(t, checkout.StateSuccess, sess.State)
	require.Equal(t, 4, h.stock.of(fullSet.Code))

	stored, err := h.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, stored.Status)
}

func TestReturnWaitsWhileGatewayPending(t *testing.T) {
	gw := checkedGateway{hostedGateway: hostedGateway{code: "abc123"}, status: payment.StatusPending}
	h := newHarness(t, defaultStock(), withGateway(gw))
	sess := h.placed(t)

	sess, err := h.svc.HandleReturn(context.Background(), sess.ID, payment.StatusSuccess, "abc123")
	require.NoError(t, err)
	require.Equal(t, checkout.StateAwaitingGateway, sess.State)
	require.Equal(t, 5, h.stock.of(fullSet.Code))
}

func TestFailedReturnKeepsOrderOpenForCallback(t *testing.T) {
	h := newHarness(t, defaultStock(), withGateway(hostedGateway{code: "abc123"}))
	ctx := context.Background()
	sess := h.placed(t)
	orderID := sess.Order.ID

	sess, err := h.svc.HandleReturn(ctx, sess.ID, payment.StatusFailed, "abc123")
	require.NoError(t, err)
	require.Equal(t, checkout.StateCourierSelected, sess.State)
	require.NotEmpty(t, sess.Error)

	stored, err := h.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPendingPayment, stored.Status)
}

func TestSessionsExpire(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess, err := h.svc.Create(ctx)
	require.NoError(t, err)

	h.mr.FastForward(2 * time.Hour)
	_, err = h.svc.Get(ctx, sess.ID)
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)
}

func TestCartCountsReflectLines(t *testing.T) {
	h := newHarness(t, defaultStock())
	ctx := context.Background()
	sess, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, sess.ID, front.Code)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, sess.ID, front.Code)
	require.NoError(t, err)

	counts, err := h.svc.CartCounts(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, map[string]int{front.Code: 2}, counts)
}
