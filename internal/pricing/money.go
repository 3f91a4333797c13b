package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseMoney converts a decimal ringgit amount such as "473.20" into sen.
// Amounts with more than two fractional digits are rounded half away from zero.
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("pricing: empty amount")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("pricing: parse amount %q: %w", value, err)
	}
	return FromDecimal(d), nil
}

// FromDecimal converts a ringgit decimal into sen.
func FromDecimal(d decimal.Decimal) Money {
	return d.Mul(hundred).Round(0).IntPart()
}

// ToDecimal converts sen into a ringgit decimal.
func ToDecimal(m Money) decimal.Decimal {
	return decimal.New(m, -2)
}

// FormatMoney renders sen as a two decimal ringgit string.
func FormatMoney(m Money) string {
	return ToDecimal(m).StringFixed(2)
}

// PerKg returns base + rate*weight where rate is expressed in sen per kilogram.
func PerKg(base, rate Money, weightKg int) Money {
	return base + rate*Money(weightKg)
}
