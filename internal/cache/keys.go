package cache

import "strings"

// Key prefixes shared by Redis-backed components.
const (
	prefixCatalog = "catalog:"
	prefixStock   = "stock:levels"
	prefixSession = "checkout:session:"
	prefixLock    = "lock:checkout:"
	prefixReplay  = "replay:toyyibpay:"
)

// KeyCatalog returns the cache key for a catalog listing.
func KeyCatalog(parts ...string) string {
	return prefixCatalog + strings.Join(parts, ":")
}

// KeyStockLevels returns the cache key for the last known stock view.
func KeyStockLevels() string {
	return prefixStock
}

// KeySession returns the key holding a checkout session document.
func KeySession(id string) string {
	return prefixSession + id
}

// KeySessionLock returns the lock key serialising writes to a session.
func KeySessionLock(id string) string {
	return prefixLock + id
}

// KeyCallbackReplay returns the replay guard key for a gateway callback.
func KeyCallbackReplay(digest string) string {
	return prefixReplay + digest
}
