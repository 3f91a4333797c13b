package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/cache"
	"github.com/noah-isme/proride-store/internal/obs"
)

// Store persists stock levels.
type Store interface {
	StockLevels(ctx context.Context) (map[string]int, error)
	DecrementStock(ctx context.Context, code string) (int, error)
	SetStock(ctx context.Context, code string, qty int) error
}

// Service reads and mutates stock with a short lived Redis view in front of the store.
type Service struct {
	store  Store
	cache  *cache.JSON
	logger zerolog.Logger

	mu   sync.RWMutex
	last Levels
}

// NewService constructs a Service. cache may be nil.
func NewService(store Store, c *cache.JSON, logger zerolog.Logger) *Service {
	return &Service{store: store, cache: c, logger: logger}
}

// Levels returns current stock. When the store cannot be read the last known
// view is returned, or an empty view when none exists.
func (s *Service) Levels(ctx context.Context) Levels {
	var cached Levels
	if ok, err := s.cache.GetJSON(ctx, cache.KeyStockLevels(), &cached); err == nil && ok {
		return cached
	}
	if s.store == nil {
		return s.fallback()
	}
	raw, err := s.store.StockLevels(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("stock fetch failed; serving last known levels")
		return s.fallback()
	}
	levels := Levels(raw)
	s.mu.Lock()
	s.last = levels.Clone()
	s.mu.Unlock()
	if err := s.cache.SetJSON(ctx, cache.KeyStockLevels(), levels); err != nil {
		s.logger.Debug().Err(err).Msg("stock cache write failed")
	}
	return levels
}

func (s *Service) fallback() Levels {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Levels{}
	}
	return s.last.Clone()
}

// Decrement removes one unit of code. The store clamps at zero.
func (s *Service) Decrement(ctx context.Context, code string) (int, error) {
	if s.store == nil {
		return 0, errors.New("inventory: store not configured")
	}
	remaining, err := s.store.DecrementStock(ctx, code)
	if err != nil {
		obs.Inc(obs.StockDecrementTotal, "error")
		return 0, fmt.Errorf("decrement %s: %w", code, err)
	}
	obs.Inc(obs.StockDecrementTotal, "ok")
	s.invalidate(ctx)
	return remaining, nil
}

// Set overwrites the level for code.
func (s *Service) Set(ctx context.Context, code string, qty int) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("inventory: code is required")
	}
	if qty < 0 {
		return ErrNegativeStock
	}
	if s.store == nil {
		return errors.New("inventory: store not configured")
	}
	if err := s.store.SetStock(ctx, code, qty); err != nil {
		return fmt.Errorf("set stock %s: %w", code, err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, cache.KeyStockLevels()); err != nil {
		s.logger.Debug().Err(err).Msg("stock cache invalidation failed")
	}
}
