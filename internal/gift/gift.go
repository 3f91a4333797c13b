// Package gift derives the free items bundled with every order.
package gift

import (
	"errors"
	"strings"

	"github.com/noah-isme/proride-store/internal/inventory"
	"github.com/noah-isme/proride-store/internal/pricing"
)

// Sticker is granted with every order.
const Sticker = "Proride Sticker"

// Sizes lists shirt sizes in display order.
var Sizes = []string{"S", "M", "L", "XL", "XXL"}

var (
	// ErrSizeRequired is returned when the order needs a shirt size and none was chosen.
	ErrSizeRequired = errors.New("gift shirt size is required")
	// ErrUnknownSize is returned for sizes outside Sizes.
	ErrUnknownSize = errors.New("unknown gift shirt size")
	// ErrSizeOutOfStock is returned when the chosen size has no stock.
	ErrSizeOutOfStock = errors.New("gift shirt size out of stock")
)

// Grant is a gift attached to an order.
type Grant struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// ShirtCode returns the stock code for a shirt size.
func ShirtCode(size string) string {
	return "GIFT-SHIRT-" + NormalizeSize(size)
}

// ShirtName returns the display name for a shirt of size.
func ShirtName(size string) string {
	return "Proride T-Shirt (" + NormalizeSize(size) + ")"
}

// NormalizeSize trims and upper-cases size.
func NormalizeSize(size string) string {
	return strings.ToUpper(strings.TrimSpace(size))
}

// KnownSize reports whether size is one of Sizes.
func KnownSize(size string) bool {
	size = NormalizeSize(size)
	for _, s := range Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// RequiresSizeSelection reports whether any line is a full set.
func RequiresSizeSelection(items []pricing.Item) bool {
	for _, it := range items {
		if pricing.IsFullSet(it) {
			return true
		}
	}
	return false
}

// GiftsFor returns the gifts for the cart. The shirt is only included when a
// full set is present and a size has been chosen.
func GiftsFor(items []pricing.Item, size string) []Grant {
	grants := []Grant{{Name: Sticker}}
	if RequiresSizeSelection(items) && KnownSize(size) {
		grants = append(grants, Grant{Name: ShirtName(size), Code: ShirtCode(size)})
	}
	return grants
}

// SelectableSizes returns sizes with stock above zero.
func SelectableSizes(stock inventory.Levels) []string {
	out := make([]string, 0, len(Sizes))
	for _, s := range Sizes {
		if stock.Of(ShirtCode(s)) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// ValidateSize checks the chosen size against the cart and shirt stock. Carts
// without a full set accept any input, including none.
func ValidateSize(items []pricing.Item, size string, stock inventory.Levels) error {
	if !RequiresSizeSelection(items) {
		return nil
	}
	if NormalizeSize(size) == "" {
		return ErrSizeRequired
	}
	if !KnownSize(size) {
		return ErrUnknownSize
	}
	if stock.Of(ShirtCode(size)) <= 0 {
		return ErrSizeOutOfStock
	}
	return nil
}

// ShirtCodeFor returns the shirt stock code to decrement for the order, if any.
func ShirtCodeFor(grants []Grant) (string, bool) {
	for _, g := range grants {
		if g.Code != "" {
			return g.Code, true
		}
	}
	return "", false
}
