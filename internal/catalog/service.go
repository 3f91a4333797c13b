package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/cache"
)

var (
	// ErrProductNotFound is returned when a product code is unknown.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrInvalidQuery is returned for malformed catalog queries.
	ErrInvalidQuery = errors.New("catalog: invalid query")
)

// Querier is the read side of the catalog store.
type Querier interface {
	ListModels(ctx context.Context) ([]CarModel, error)
	ListProducts(ctx context.Context, model, variant string) ([]Product, error)
	GetProduct(ctx context.Context, code string) (Product, error)
	ListImages(ctx context.Context) ([]Image, error)
}

// Service serves catalog reads from the store, caching results in Redis.
// Store failures and empty stores degrade to the bundled dataset.
type Service struct {
	queries  Querier
	cache    *cache.JSON
	fallback *Dataset
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries  Querier
	Cache    *cache.JSON
	Fallback *Dataset
	Logger   zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil && cfg.Fallback == nil {
		return nil, errors.New("catalog: queries or fallback dataset is required")
	}
	return &Service{queries: cfg.Queries, cache: cfg.Cache, fallback: cfg.Fallback, logger: cfg.Logger}, nil
}

// Models lists the car models on offer.
func (s *Service) Models(ctx context.Context) ([]CarModel, error) {
	key := cache.KeyCatalog("models")
	var cached []CarModel
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	if s.queries != nil {
		rows, err := s.queries.ListModels(ctx)
		if err == nil && len(rows) > 0 {
			_ = s.cache.SetJSON(ctx, key, rows)
			return rows, nil
		}
		s.degraded(err, "models")
	}
	if s.fallback != nil {
		return s.fallback.Models, nil
	}
	return []CarModel{}, nil
}

// Variants lists the variants carried for model.
func (s *Service) Variants(ctx context.Context, model string) ([]string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidQuery)
	}
	products, err := s.Products(ctx, model, "")
	if err != nil {
		return nil, err
	}
	return VariantsOf(products, model), nil
}

// Products lists products for model, optionally narrowed to variant.
func (s *Service) Products(ctx context.Context, model, variant string) ([]Product, error) {
	model = strings.TrimSpace(model)
	variant = strings.ToUpper(strings.TrimSpace(variant))
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidQuery)
	}
	key := cache.KeyCatalog("products", model, variant)
	var cached []Product
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	if s.queries != nil {
		rows, err := s.queries.ListProducts(ctx, model, variant)
		if err == nil && len(rows) > 0 {
			_ = s.cache.SetJSON(ctx, key, rows)
			return rows, nil
		}
		s.degraded(err, "products")
	}
	if s.fallback != nil {
		return Filter(s.fallback.Products, model, variant), nil
	}
	return []Product{}, nil
}

// Product returns a single product by code.
func (s *Service) Product(ctx context.Context, code string) (Product, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Product{}, ErrProductNotFound
	}
	if s.queries != nil {
		p, err := s.queries.GetProduct(ctx, code)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrProductNotFound) {
			s.degraded(err, "product")
		}
	}
	if s.fallback != nil {
		if p, ok := s.fallback.Product(code); ok {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

// ImageURL resolves the display image for model and variant.
func (s *Service) ImageURL(ctx context.Context, model, variant string) string {
	return ResolveImage(s.images(ctx), model, variant)
}

func (s *Service) images(ctx context.Context) []Image {
	key := cache.KeyCatalog("images")
	var cached []Image
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached
	}
	if s.queries != nil {
		rows, err := s.queries.ListImages(ctx)
		if err == nil && len(rows) > 0 {
			_ = s.cache.SetJSON(ctx, key, rows)
			return rows
		}
		s.degraded(err, "images")
	}
	if s.fallback != nil {
		return s.fallback.Images
	}
	return nil
}

// Invalidate drops the given cache keys, or every catalog listing when none
// are named.
func (s *Service) Invalidate(ctx context.Context, keys ...string) {
	var err error
	if len(keys) == 0 {
		err = s.cache.DeletePrefix(ctx, cache.KeyCatalog())
	} else {
		err = s.cache.Delete(ctx, keys...)
	}
	if err != nil {
		s.logger.Debug().Err(err).Msg("catalog cache invalidation failed")
	}
}

func (s *Service) degraded(err error, what string) {
	if err == nil {
		s.logger.Debug().Str("resource", what).Msg("catalog store empty; using bundled dataset")
		return
	}
	s.logger.Warn().Err(err).Str("resource", what).Msg("catalog store unavailable; using bundled dataset")
}
