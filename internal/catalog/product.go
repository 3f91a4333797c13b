package catalog

import (
	"sort"
	"strings"

	"github.com/noah-isme/proride-store/internal/pricing"
)

// PlaceholderImage is served when no image is mapped for a model and variant.
const PlaceholderImage = "https://placehold.co/600x400?text=No+Image"

// Known product variants in display order.
const (
	VariantStandard    = "STANDARD"
	VariantHeavyDuty   = "HEAVY DUTY"
	VariantPerformance = "PERFORMANCE"
	VariantSportSpring = pricing.VariantSportSpring
)

var variantOrder = []string{VariantStandard, VariantHeavyDuty, VariantPerformance, VariantSportSpring}

var variantLabels = map[string]string{
	VariantStandard:    "Standard Absorber",
	VariantHeavyDuty:   "Heavy Duty Absorber",
	VariantPerformance: "Performance Absorber",
	VariantSportSpring: "Sport Spring",
}

// Product is a sellable suspension part. Price is stored in sen.
type Product struct {
	Code           string        `json:"code"`
	Model          string        `json:"model"`
	Variant        string        `json:"variant"`
	Position       string        `json:"position"`
	QuantityPerSet int           `json:"quantityPerSet"`
	Price          pricing.Money `json:"price"`
}

// Item converts the product into a pricing line.
func (p Product) Item() pricing.Item {
	return pricing.Item{Code: p.Code, Variant: p.Variant, Position: p.Position, UnitPrice: p.Price}
}

// CarModel is a vehicle model the catalog carries parts for.
type CarModel struct {
	Name string `json:"name"`
	Make string `json:"make"`
}

// Image maps an image key onto a URL.
type Image struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// VariantLabel returns the human label used for image lookups.
func VariantLabel(variant string) string {
	v := strings.ToUpper(strings.TrimSpace(variant))
	if label, ok := variantLabels[v]; ok {
		return label
	}
	return strings.TrimSpace(variant)
}

// ImageKey builds the lookup key "<MODEL>-<variant label>".
func ImageKey(model, variant string) string {
	return strings.TrimSpace(model) + "-" + VariantLabel(variant)
}

// ResolveImage returns the mapped URL for the model and variant or the placeholder.
func ResolveImage(images []Image, model, variant string) string {
	key := ImageKey(model, variant)
	for _, img := range images {
		if img.Key == key && img.URL != "" {
			return img.URL
		}
	}
	return PlaceholderImage
}

// VariantsOf returns the distinct variants offered for a model, in display order.
func VariantsOf(products []Product, model string) []string {
	seen := make(map[string]bool)
	for _, p := range products {
		if p.Model == model {
			seen[p.Variant] = true
		}
	}
	out := make([]string, 0, len(seen))
	for _, v := range variantOrder {
		if seen[v] {
			out = append(out, v)
			delete(seen, v)
		}
	}
	extra := make([]string, 0, len(seen))
	for v := range seen {
		extra = append(extra, v)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Filter returns products for model, optionally narrowed to variant.
func Filter(products []Product, model, variant string) []Product {
	out := make([]Product, 0)
	for _, p := range products {
		if p.Model != model {
			continue
		}
		if variant != "" && p.Variant != variant {
			continue
		}
		out = append(out, p)
	}
	return out
}
