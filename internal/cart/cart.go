package cart

import (
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/inventory"
	"github.com/noah-isme/proride-store/internal/pricing"
)

var (
	// ErrOutOfStock is returned when adding a product would exceed stock on hand.
	ErrOutOfStock = errors.New("out of stock")
	// ErrLineNotFound indicates the cart has no line with the given id.
	ErrLineNotFound = errors.New("cart line not found")
)

// Line is one unit of a product in the cart. Adding the same product twice
// creates two lines with distinct ids.
type Line struct {
	LineID  string          `json:"lineId"`
	Product catalog.Product `json:"product"`
}

// Cart is the ordered list of lines held by a checkout session.
type Cart struct {
	Lines []Line `json:"lines"`
}

// Len returns the number of lines.
func (c Cart) Len() int { return len(c.Lines) }

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool { return len(c.Lines) == 0 }

// Count returns how many lines hold code.
func (c Cart) Count(code string) int {
	n := 0
	for _, l := range c.Lines {
		if l.Product.Code == code {
			n++
		}
	}
	return n
}

// Counts returns line counts per product code.
func (c Cart) Counts() map[string]int {
	out := make(map[string]int, len(c.Lines))
	for _, l := range c.Lines {
		out[l.Product.Code]++
	}
	return out
}

// Items returns the pricing view of the cart.
func (c Cart) Items() []pricing.Item {
	items := make([]pricing.Item, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, l.Product.Item())
	}
	return items
}

// Add appends a new line for p and returns it.
func (c *Cart) Add(p catalog.Product) Line {
	line := Line{LineID: uuid.NewString(), Product: p}
	c.Lines = append(c.Lines, line)
	return line
}

// Remove deletes the line with lineID.
func (c *Cart) Remove(lineID string) error {
	for i, l := range c.Lines {
		if l.LineID == lineID {
			c.Lines = append(c.Lines[:i:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// Clear drops every line.
func (c *Cart) Clear() { c.Lines = nil }

// Available returns stock for code minus the units already in the cart,
// floored at zero.
func Available(code string, c Cart, stock inventory.Levels) int {
	return stock.Available(code, c.Count(code))
}

// CanAdd admits p when at least one unit remains after what the cart holds.
// Nothing is reserved; stock is only decremented after payment.
func CanAdd(p catalog.Product, c Cart, stock inventory.Levels) error {
	if Available(p.Code, c, stock) <= 0 {
		return ErrOutOfStock
	}
	return nil
}
