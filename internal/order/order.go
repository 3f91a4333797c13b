package order

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/gift"
	"github.com/noah-isme/proride-store/internal/pricing"
)

// Status is the payment lifecycle of an order.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusFailed         Status = "failed"
)

// ErrNotFound indicates the order does not exist.
var ErrNotFound = errors.New("order not found")

// Customer holds the buyer's contact and delivery details.
type Customer struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
	Address  string `json:"address" validate:"required"`
	Postcode string `json:"postcode" validate:"required,len=5,numeric"`
}

// Order is the persisted snapshot of a checkout.
type Order struct {
	ID           string            `json:"id"`
	Items        []catalog.Product `json:"items"`
	ItemsSummary string            `json:"itemsSummary"`
	Subtotal     pricing.Money     `json:"subtotal"`
	Shipping     pricing.Money     `json:"shipping"`
	Discount     pricing.Money     `json:"discount"`
	Total        pricing.Money     `json:"total"`
	CourierName  string            `json:"courierName"`
	ServiceType  string            `json:"serviceType"`
	VoucherCode  string            `json:"voucherCode,omitempty"`
	Gifts        []gift.Grant      `json:"gifts"`
	Customer     Customer          `json:"customer"`
	Status       Status            `json:"status"`
	BillCode     string            `json:"billCode,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	PaidAt       *time.Time        `json:"paidAt,omitempty"`
}

// ItemsSummary renders one "<MODEL> <VARIANT> - <POSITION> (x<PRICE>)" entry per line.
func ItemsSummary(items []catalog.Product) string {
	parts := make([]string, 0, len(items))
	for _, p := range items {
		parts = append(parts, p.Model+" "+p.Variant+" - "+p.Position+" (x"+pricing.FormatMoney(p.Price)+")")
	}
	return strings.Join(parts, ", ")
}

// GiftNames returns the display names of the order's gifts.
func (o Order) GiftNames() []string {
	out := make([]string, 0, len(o.Gifts))
	for _, g := range o.Gifts {
		out = append(out, g.Name)
	}
	return out
}

// StockCodes lists the codes to decrement on payment, one per unit, gift shirt last.
func (o Order) StockCodes() []string {
	codes := make([]string, 0, len(o.Items)+1)
	for _, p := range o.Items {
		codes = append(codes, p.Code)
	}
	if code, ok := gift.ShirtCodeFor(o.Gifts); ok {
		codes = append(codes, code)
	}
	return codes
}
