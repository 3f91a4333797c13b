package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/pricing"
)

// ErrGatewayUnavailable wraps every failure to obtain a bill from the gateway.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// BillRequest describes the bill to open for an order.
type BillRequest struct {
	OrderID     string
	Amount      pricing.Money
	ReturnURL   string
	CallbackURL string
	Customer    order.Customer
}

// Bill is a payable bill on the gateway.
type Bill struct {
	Code        string `json:"billCode"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Simulated   bool   `json:"simulated"`
}

// Gateway opens bills on a hosted payment page.
type Gateway interface {
	CreateBill(ctx context.Context, req BillRequest) (Bill, error)
}

// BillChecker asks the gateway for the settled state of a bill. It returns
// one of StatusSuccess, StatusPending or StatusFailed.
type BillChecker interface {
	BillStatus(ctx context.Context, billCode, orderID string) (string, error)
}

// BillName returns the bill title shown on the payment page.
func BillName(orderID string) string {
	if orderID == "" {
		orderID = "New"
	}
	return "Proride - Order #" + orderID
}

// BillDescription returns the bill description shown on the payment page.
func BillDescription(orderID string) string {
	return "Parts + Shipping (Ref: " + orderID + ")"
}

// Simulator stands in for the gateway when it is not configured or fails.
type Simulator struct {
	IntN func(n int) int
}

// CreateBill returns a mock bill code without any network call.
func (s Simulator) CreateBill(_ context.Context, _ BillRequest) (Bill, error) {
	return Bill{Code: s.MockCode(), Simulated: true}, nil
}

// MockCode returns a "TP-MOCK-n" bill code.
func (s Simulator) MockCode() string {
	intn := s.IntN
	if intn == nil {
		intn = rand.IntN
	}
	return fmt.Sprintf("TP-MOCK-%d", intn(100000))
}
