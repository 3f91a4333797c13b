package inventory

import "errors"

// ErrNegativeStock is returned when an admin tries to set a level below zero.
var ErrNegativeStock = errors.New("inventory: stock cannot be negative")

// Levels maps product codes and gift codes onto units on hand.
type Levels map[string]int

// Of returns the level for code; unknown codes have zero stock.
func (l Levels) Of(code string) int {
	if l == nil {
		return 0
	}
	if n := l[code]; n > 0 {
		return n
	}
	return 0
}

// Available returns stock minus units already held, floored at zero.
func (l Levels) Available(code string, held int) int {
	n := l.Of(code) - held
	if n < 0 {
		return 0
	}
	return n
}

// LowStock reports whether available units are positive but fewer than three.
func LowStock(available int) bool {
	return available > 0 && available < 3
}

// Clone returns a copy safe to hand to callers.
func (l Levels) Clone() Levels {
	out := make(Levels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
