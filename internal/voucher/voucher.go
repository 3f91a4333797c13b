package voucher

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/proride-store/internal/pricing"
)

var (
	// ErrVoucherNotFound is returned when no active voucher has the code.
	ErrVoucherNotFound = errors.New("voucher not found")
	// ErrVoucherExpired is returned outside the validity window, including before it opens.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrDuplicateCode is returned when creating a voucher whose code exists.
	ErrDuplicateCode = errors.New("voucher code already exists")
)

// Voucher is a flat-amount discount code.
type Voucher struct {
	ID        string        `json:"id"`
	Code      string        `json:"code"`
	Amount    pricing.Money `json:"amount"`
	ValidFrom time.Time     `json:"validFrom"`
	ValidTo   time.Time     `json:"validTo"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Rule captures the runtime constraints of a voucher.
type Rule struct {
	Code      string
	Amount    pricing.Money
	ValidFrom time.Time
	ValidTo   time.Time
}

// Rule returns the validation rule for v.
func (v Voucher) Rule() Rule {
	return Rule{Code: v.Code, Amount: v.Amount, ValidFrom: v.ValidFrom, ValidTo: v.ValidTo}
}

// Validate checks now against the window. Both ends are inclusive.
func (r Rule) Validate(now time.Time) error {
	if now.Before(r.ValidFrom) || now.After(r.ValidTo) {
		return ErrVoucherExpired
	}
	return nil
}

// NormalizeCode trims and upper-cases a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
