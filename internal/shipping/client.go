package shipping

import (
	"context"

	"github.com/noah-isme/proride-store/internal/pricing"
)

// Service classes offered by couriers.
const (
	ServiceAir  = "Air"
	ServiceSea  = "Sea"
	ServiceLand = "Land"
)

// RateReq describes a shipping rate request.
type RateReq struct {
	Postcode  string
	WeightKg  int
	ItemCount int
}

// Option describes a quoted courier service.
type Option struct {
	ServiceID   string        `json:"serviceId"`
	CourierName string        `json:"courierName"`
	ServiceType string        `json:"serviceType"`
	Price       pricing.Money `json:"price"`
	ETD         string        `json:"etd"`
}

// Client defines the behaviour required to quote shipping rates.
type Client interface {
	Rates(ctx context.Context, r RateReq) ([]Option, error)
}
