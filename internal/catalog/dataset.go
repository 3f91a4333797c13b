package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/noah-isme/proride-store/internal/pricing"
)

//go:embed data/catalog.json
var rawDataset []byte

// Dataset is the bundled reference catalog used for seeding and as a read fallback.
type Dataset struct {
	Models   []CarModel
	Images   []Image
	Products []Product
}

type datasetFile struct {
	Models   []CarModel `json:"models"`
	Images   []Image    `json:"images"`
	Products []struct {
		Code     string `json:"code"`
		Model    string `json:"model"`
		Variant  string `json:"variant"`
		Position string `json:"position"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
	} `json:"products"`
}

var (
	datasetOnce sync.Once
	dataset     Dataset
	datasetErr  error
)

// LoadDataset parses the embedded catalog once.
func LoadDataset() (Dataset, error) {
	datasetOnce.Do(func() {
		dataset, datasetErr = parseDataset(rawDataset)
	})
	return dataset, datasetErr
}

func parseDataset(raw []byte) (Dataset, error) {
	var file datasetFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return Dataset{}, fmt.Errorf("catalog: decode dataset: %w", err)
	}
	ds := Dataset{Models: file.Models, Images: file.Images}
	ds.Products = make([]Product, 0, len(file.Products))
	seen := make(map[string]struct{}, len(file.Products))
	for _, p := range file.Products {
		if _, dup := seen[p.Code]; dup {
			return Dataset{}, fmt.Errorf("catalog: duplicate product code %s", p.Code)
		}
		seen[p.Code] = struct{}{}
		price, err := pricing.ParseMoney(p.Price)
		if err != nil {
			return Dataset{}, fmt.Errorf("catalog: product %s: %w", p.Code, err)
		}
		ds.Products = append(ds.Products, Product{
			Code:           p.Code,
			Model:          p.Model,
			Variant:        p.Variant,
			Position:       p.Position,
			QuantityPerSet: p.Quantity,
			Price:          price,
		})
	}
	return ds, nil
}

// SeedStock returns the initial stock level per product code.
func (d Dataset) SeedStock() map[string]int {
	out := make(map[string]int, len(d.Products))
	for _, p := range d.Products {
		out[p.Code] = p.QuantityPerSet
	}
	return out
}

// Product looks up a product by code.
func (d Dataset) Product(code string) (Product, bool) {
	for _, p := range d.Products {
		if p.Code == code {
			return p, true
		}
	}
	return Product{}, false
}
