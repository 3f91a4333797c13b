package pricing

import "strings"

// Money represents a monetary value stored in minor units (sen).
type Money = int64

// Catalog classifiers that drive shipping weight.
const (
	VariantSportSpring = "SPORT SPRING"
	PositionFront      = "FRONT"
	PositionRear       = "REAR"
	PositionFullSet    = "1SET"
)

// Shipping weights in kilograms.
const (
	WeightSportSpring = 8
	WeightFront       = 10
	WeightRear        = 5
	WeightFullSet     = 15
	WeightDefault     = 5
)

// Item describes a cart line used for pricing and weight calculation.
type Item struct {
	Code      string
	Variant   string
	Position  string
	UnitPrice Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Shipping Money `json:"shipping"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
	WeightKg int   `json:"weightKg"`
}

// WeightOf returns the shipping weight of a single item. Sport springs always
// weigh the same regardless of position.
func WeightOf(it Item) int {
	if normalise(it.Variant) == VariantSportSpring {
		return WeightSportSpring
	}
	switch normalise(it.Position) {
	case PositionFront:
		return WeightFront
	case PositionRear:
		return WeightRear
	case PositionFullSet:
		return WeightFullSet
	default:
		return WeightDefault
	}
}

// TotalWeight sums WeightOf across items.
func TotalWeight(items []Item) int {
	total := 0
	for _, it := range items {
		total += WeightOf(it)
	}
	return total
}

// Subtotal sums unit prices; each cart line is one unit.
func Subtotal(items []Item) Money {
	var subtotal Money
	for _, it := range items {
		subtotal += it.UnitPrice
	}
	return subtotal
}

// FinalTotal computes subtotal + shipping - discount floored at zero.
func FinalTotal(subtotal, shipping, discount Money) Money {
	total := subtotal + shipping - discount
	if total < 0 {
		return 0
	}
	return total
}

// Compute calculates the full order summary.
func Compute(items []Item, shipping, discount Money) Summary {
	subtotal := Subtotal(items)
	return Summary{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Total:    FinalTotal(subtotal, shipping, discount),
		WeightKg: TotalWeight(items),
	}
}

// IsFullSet reports whether the item is a full car set.
func IsFullSet(it Item) bool {
	return normalise(it.Position) == PositionFullSet
}

func normalise(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}
