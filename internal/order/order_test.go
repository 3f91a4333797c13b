package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/gift"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/order/ordertest"
	"github.com/noah-isme/proride-store/internal/pricing"
)

type countingStock struct {
	mu    sync.Mutex
	calls []string
}

func (c *countingStock) Decrement(_ context.Context, code string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, code)
	return 0, nil
}

type recordingReceipts struct{ paid []order.Order }

func (r *recordingReceipts) NotifyPaid(_ context.Context, o order.Order) error {
	r.paid = append(r.paid, o)
	return nil
}

var (
	sast  = catalog.Product{Code: "SAST", Model: "SAGA/ISWARA", Variant: "STANDARD", Position: "1SET", Price: 47320}
	safst = catalog.Product{Code: "SAFST", Model: "SAGA/ISWARA", Variant: "STANDARD", Position: "FRONT", Price: 29380}
)

func sampleOrder() order.Order {
	return order.Order{
		ID:        "11111111-1111-1111-1111-111111111111",
		Items:     []catalog.Product{sast, safst},
		Gifts:     gift.GiftsFor([]pricing.Item{sast.Item(), safst.Item()}, "M"),
		Status:    order.StatusPendingPayment,
		Total:     54820,
		Customer:  order.Customer{Name: "Aminah", Email: "aminah@example.com"},
		CreatedAt: time.Now(),
	}
}

func TestItemsSummaryFormat(t *testing.T) {
	got := order.ItemsSummary([]catalog.Product{sast, safst})
	require.Equal(t, "SAGA/ISWARA STANDARD - 1SET (x473.20), SAGA/ISWARA STANDARD - FRONT (x293.80)", got)
	require.Equal(t, "", order.ItemsSummary(nil))
}

func TestStockCodesIncludeShirtLast(t *testing.T) {
	o := sampleOrder()
	require.Equal(t, []string{"SAST", "SAFST", "GIFT-SHIRT-M"}, o.StockCodes())
	require.Equal(t, []string{"Proride Sticker", "Proride T-Shirt (M)"}, o.GiftNames())
}

func TestRecorderReportsFailureWithoutPanicking(t *testing.T) {
	store := ordertest.New()
	store.InsertErr = errors.New("connection reset")
	out := order.Recorder{Store: store, Logger: zerolog.Nop()}.Record(context.Background(), sampleOrder())
	require.False(t, out.Persisted())
	require.Equal(t, sampleOrder().ID, out.OrderID)

	out = order.Recorder{Logger: zerolog.Nop()}.Record(context.Background(), sampleOrder())
	require.False(t, out.Persisted())
}

func TestSettleAppliesEffectsOnce(t *testing.T) {
	store := ordertest.New()
	o := sampleOrder()
	require.True(t, order.Recorder{Store: store}.Record(context.Background(), o).Persisted())

	stock := &countingStock{}
	receipts := &recordingReceipts{}
	settler := order.Settler{Orders: store, Stock: stock, Receipts: receipts, Logger: zerolog.Nop()}

	var wg sync.WaitGroup
	applied := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied <- settler.Settle(context.Background(), o, true, "BILL123")
		}()
	}
	wg.Wait()
	close(applied)
	wins := 0
	for ok := range applied {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, []string{"SAST", "SAFST", "GIFT-SHIRT-M"}, stock.calls)
	require.Len(t, receipts.paid, 1)
	require.Equal(t, "BILL123", receipts.paid[0].BillCode)

	stored, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
}

func TestSettleUnpersistedOrderStillDecrements(t *testing.T) {
	stock := &countingStock{}
	settler := order.Settler{Orders: ordertest.New(), Stock: stock, Logger: zerolog.Nop()}
	require.True(t, settler.Settle(context.Background(), sampleOrder(), false, "TP-MOCK-1"))
	require.Len(t, stock.calls, 3)
}

func TestFailOnlyMovesPendingOrders(t *testing.T) {
	store := ordertest.New()
	o := sampleOrder()
	require.NoError(t, store.InsertOrder(context.Background(), o))
	settler := order.Settler{Orders: store, Logger: zerolog.Nop()}
	settler.Fail(context.Background(), o.ID)

	stored, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusFailed, stored.Status)
	require.False(t, settler.Settle(context.Background(), o, true, "LATE"))
}

func TestAdminListHandler(t *testing.T) {
	store := ordertest.New()
	require.NoError(t, store.InsertOrder(context.Background(), sampleOrder()))
	h := &order.AdminHandler{Store: store}

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []order.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "SAGA/ISWARA", body.Data[0].Items[0].Model)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?limit=zero", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
