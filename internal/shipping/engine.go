package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/noah-isme/proride-store/internal/obs"
	"github.com/noah-isme/proride-store/internal/pricing"
)

var (
	// ErrInvalidInput groups every rejected quote request.
	ErrInvalidInput = errors.New("invalid shipping input")
	// ErrInvalidPostcode is returned when the postcode is not exactly five digits.
	ErrInvalidPostcode = fmt.Errorf("%w: postcode must be 5 digits", ErrInvalidInput)
	// ErrEmptyCart is returned when quoting an empty cart.
	ErrEmptyCart = fmt.Errorf("%w: cart is empty", ErrInvalidInput)
)

// Zone is the postcode derived shipping classification.
type Zone string

const (
	// ZoneOutlying covers East Malaysia and is served by air and sea.
	ZoneOutlying Zone = "A"
	// ZoneStandard covers Peninsular Malaysia and is served by land.
	ZoneStandard Zone = "B"
)

// Outlying postcode range, inclusive.
const (
	OutlyingPostcodeMin = 87000
	OutlyingPostcodeMax = 99999
)

type tariff struct {
	serviceID   string
	courier     string
	serviceType string
	base        pricing.Money
	perKg       pricing.Money
	etd         string
}

var outlyingTariffs = []tariff{
	{serviceID: "poslaju_air", courier: "Pos Laju", serviceType: ServiceAir, base: 2000, perKg: 1500, etd: "3-5 Days"},
	{serviceID: "jnt_air", courier: "J&T Express", serviceType: ServiceAir, base: 2500, perKg: 1600, etd: "2-4 Days"},
	{serviceID: "pos_sea", courier: "Pos Malaysia Sea Freight", serviceType: ServiceSea, base: 1500, perKg: 400, etd: "21-30 Days"},
}

var standardTariffs = []tariff{
	{serviceID: "jnt_land", courier: "J&T Express", serviceType: ServiceLand, base: 800, perKg: 200, etd: "1-3 Days"},
	{serviceID: "poslaju_land", courier: "Pos Laju", serviceType: ServiceLand, base: 900, perKg: 200, etd: "2-4 Days"},
}

// Engine computes weight based courier rates from fixed tariffs. Latency
// simulates the upstream quote round-trip and respects context cancellation.
type Engine struct {
	Latency time.Duration
}

// ValidPostcode reports whether the postcode is exactly five ASCII digits.
func ValidPostcode(postcode string) bool {
	if len(postcode) != 5 {
		return false
	}
	for i := 0; i < len(postcode); i++ {
		if postcode[i] < '0' || postcode[i] > '9' {
			return false
		}
	}
	return true
}

// Classify maps a postcode onto its shipping zone.
func Classify(postcode string) (Zone, error) {
	if !ValidPostcode(postcode) {
		return "", ErrInvalidPostcode
	}
	n, err := strconv.Atoi(postcode)
	if err != nil {
		return "", ErrInvalidPostcode
	}
	if n >= OutlyingPostcodeMin && n <= OutlyingPostcodeMax {
		return ZoneOutlying, nil
	}
	return ZoneStandard, nil
}

// Quote returns courier options for the destination sorted ascending by price.
// Equal prices keep tariff order.
func (e Engine) Quote(ctx context.Context, postcode string, weightKg, itemCount int) ([]Option, error) {
	zone, err := Classify(postcode)
	if err != nil {
		observeQuote("invalid_postcode")
		return nil, err
	}
	if itemCount <= 0 {
		observeQuote("empty_cart")
		return nil, ErrEmptyCart
	}
	if e.Latency > 0 {
		timer := time.NewTimer(e.Latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	tariffs := standardTariffs
	if zone == ZoneOutlying {
		tariffs = outlyingTariffs
	}
	options := make([]Option, 0, len(tariffs))
	for _, t := range tariffs {
		options = append(options, Option{
			ServiceID:   t.serviceID,
			CourierName: t.courier,
			ServiceType: t.serviceType,
			Price:       pricing.PerKg(t.base, t.perKg, weightKg),
			ETD:         t.etd,
		})
	}
	sort.SliceStable(options, func(i, j int) bool { return options[i].Price < options[j].Price })
	observeQuote(string(zone))
	return options, nil
}

// Rates implements Client.
func (e Engine) Rates(ctx context.Context, r RateReq) ([]Option, error) {
	return e.Quote(ctx, r.Postcode, r.WeightKg, r.ItemCount)
}

// Find returns the option with the given service id.
func Find(options []Option, serviceID string) (Option, bool) {
	for _, opt := range options {
		if opt.ServiceID == serviceID {
			return opt, true
		}
	}
	return Option{}, false
}

func observeQuote(result string) {
	obs.Inc(obs.ShippingQuoteTotal, result)
}
