package payment_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/order/ordertest"
	"github.com/noah-isme/proride-store/internal/payment"
)

func TestToyyibPayCreateBillPostsForm(t *testing.T) {
	var (
		form        url.Values
		path        string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		_, _ = io.WriteString(w, `[{"BillCode":"abc123"}]`)
	}))
	t.Cleanup(srv.Close)

	gw := payment.NewToyyibPay(payment.ToyyibPayConfig{BaseURL: srv.URL, SecretKey: "sk", CategoryCode: "cat", Logger: zerolog.Nop()})
	bill, err := gw.CreateBill(context.Background(), payment.BillRequest{
		OrderID:     "ord-1",
		Amount:      54820,
		ReturnURL:   "https://shop.example/return",
		CallbackURL: "https://shop.example/callback",
		Customer:    order.Customer{Name: "Aminah", Email: "a@example.com", Phone: "0123456789"},
	})
	require.NoError(t, err)
	require.Equal(t, "abc123", bill.Code)
	require.Equal(t, srv.URL+"/abc123", bill.RedirectURL)
	require.False(t, bill.Simulated)
	require.Equal(t, "/index.php/api/createBill", path)
	require.Equal(t, "application/x-www-form-urlencoded", contentType)

	require.Equal(t, "sk", form.Get("userSecretKey"))
	require.Equal(t, "cat", form.Get("categoryCode"))
	require.Equal(t, "54820", form.Get("billAmount"))
	require.Equal(t, "Proride - Order #ord-1", form.Get("billName"))
	require.Equal(t, "Parts + Shipping (Ref: ord-1)", form.Get("billDescription"))
	require.Equal(t, "ord-1", form.Get("billExternalReferenceNo"))
	require.Equal(t, "1", form.Get("billChargeToCustomer"))
}

func TestToyyibPayFailuresAreGatewayErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, `[{"status":"error","msg":"[KEY-DID-NOT-EXIST-OR-USER-IS-NOT-ACTIVE]"}]`)
	}))
	t.Cleanup(srv.Close)

	gw := payment.NewToyyibPay(payment.ToyyibPayConfig{BaseURL: srv.URL, SecretKey: "sk", CategoryCode: "cat"})
	_, err := gw.CreateBill(context.Background(), payment.BillRequest{OrderID: "x", Amount: 100})
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))

	unconfigured := payment.NewToyyibPay(payment.ToyyibPayConfig{})
	require.False(t, unconfigured.Configured())
	_, err = unconfigured.CreateBill(context.Background(), payment.BillRequest{})
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestToyyibPayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	gw := payment.NewToyyibPay(payment.ToyyibPayConfig{BaseURL: srv.URL, SecretKey: "sk", CategoryCode: "cat", Timeout: 10 * time.Millisecond})
	_, err := gw.CreateBill(context.Background(), payment.BillRequest{OrderID: "x"})
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestSimulatorMockCodes(t *testing.T) {
	sim := payment.Simulator{IntN: func(int) int { return 4242 }}
	bill, err := sim.CreateBill(context.Background(), payment.BillRequest{})
	require.NoError(t, err)
	require.Equal(t, "TP-MOCK-4242", bill.Code)
	require.True(t, bill.Simulated)
	require.True(t, strings.HasPrefix(payment.Simulator{}.MockCode(), "TP-MOCK-"))
	require.Equal(t, "Proride - Order #New", payment.BillName(""))
}

type decrements struct{ codes []string }

func (d *decrements) Decrement(_ context.Context, code string) (int, error) {
	d.codes = append(d.codes, code)
	return 0, nil
}

func newCallback(t *testing.T) (payment.Callback, *ordertest.Store, *decrements) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := ordertest.New()
	require.NoError(t, store.InsertOrder(context.Background(), order.Order{
		ID:     "ord-1",
		Items:  []catalog.Product{{Code: "SAST", Position: "1SET", Price: 47320}},
		Status: order.StatusPendingPayment,
	}))
	stock := &decrements{}
	return payment.Callback{
		Secret:  "secret",
		Orders:  store,
		Settler: order.Settler{Orders: store, Stock: stock, Logger: zerolog.Nop()},
		Replay:  client,
		Logger:  zerolog.Nop(),
	}, store, stock
}

func postCallback(h payment.Callback, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/toyyibpay/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func callbackForm(status, refNo, hash string) url.Values {
	return url.Values{
		"refno":    {refNo},
		"status":   {status},
		"billcode": {"abc123"},
		"order_id": {"ord-1"},
		"hash":     {hash},
	}
}

func TestCallbackSettlesOnceAndRejectsReplay(t *testing.T) {
	h, store, stock := newCallback(t)
	form := callbackForm(payment.StatusSuccess, "TP1", payment.CallbackHash("secret", "1", "ord-1", "TP1"))

	rec := postCallback(h, form)
	require.Equal(t, http.StatusOK, rec.Code)
	o, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)
	require.Equal(t, "abc123", o.BillCode)
	require.Equal(t, []string{"SAST"}, stock.codes)

	rec = postCallback(h, form)
	require.Equal(t, http.StatusConflict, rec.Code)

	other := callbackForm(payment.StatusSuccess, "TP2", payment.CallbackHash("secret", "1", "ord-1", "TP2"))
	rec = postCallback(h, other)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"SAST"}, stock.codes)
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	h, store, _ := newCallback(t)
	rec := postCallback(h, callbackForm(payment.StatusSuccess, "TP1", payment.CallbackHash("wrong", "1", "ord-1", "TP1")))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	o, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusPendingPayment, o.Status)
}

func TestCallbackFailureMarksOrderFailed(t *testing.T) {
	h, store, stock := newCallback(t)
	rec := postCallback(h, callbackForm(payment.StatusFailed, "TP9", payment.CallbackHash("secret", "3", "ord-1", "TP9")))
	require.Equal(t, http.StatusOK, rec.Code)
	o, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusFailed, o.Status)
	require.Empty(t, stock.codes)
}

func TestCallbackRetryAfterFetchErrorIsApplied(t *testing.T) {
	h, store, stock := newCallback(t)
	store.GetErr = errors.New("connection reset")
	form := callbackForm(payment.StatusSuccess, "TP1", payment.CallbackHash("secret", "1", "ord-1", "TP1"))

	rec := postCallback(h, form)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, stock.codes)

	rec = postCallback(h, form)
	require.Equal(t, http.StatusOK, rec.Code)
	o, err := store.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)
	require.Equal(t, []string{"SAST"}, stock.codes)

	rec = postCallback(h, form)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestToyyibPayBillStatus(t *testing.T) {
	var reply atomic.Value
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = io.WriteString(w, reply.Load().(string))
	}))
	t.Cleanup(srv.Close)
	gw := payment.NewToyyibPay(payment.ToyyibPayConfig{BaseURL: srv.URL, SecretKey: "sk", CategoryCode: "cat"})
	ctx := context.Background()

	reply.Store(`[]`)
	status, err := gw.BillStatus(ctx, "abc123", "ord-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusPending, status)
	require.Equal(t, "/index.php/api/getBillTransactions", path)

	reply.Store(`[{"billpaymentStatus":"3","billExternalReferenceNo":"ord-1"},{"billpaymentStatus":"1","billExternalReferenceNo":"ord-1"}]`)
	status, err = gw.BillStatus(ctx, "abc123", "ord-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusSuccess, status)

	reply.Store(`[{"billpaymentStatus":"3","billExternalReferenceNo":"ord-1"}]`)
	status, err = gw.BillStatus(ctx, "abc123", "ord-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusFailed, status)

	reply.Store(`[{"billpaymentStatus":"1","billExternalReferenceNo":"ord-2"}]`)
	_, err = gw.BillStatus(ctx, "abc123", "ord-1")
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestCallbackUnknownOrder(t *testing.T) {
	h, _, _ := newCallback(t)
	form := callbackForm(payment.StatusSuccess, "TP1", payment.CallbackHash("secret", "1", "missing", "TP1"))
	form.Set("order_id", "missing")
	rec := postCallback(h, form)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
