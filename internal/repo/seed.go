package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/proride-store/internal/admin"
	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/gift"
)

// Seed loads the bundled catalog into the database. Models, images and
// products are upserted; stock rows are only created when missing so admin
// adjustments survive a reseed.
func (s *Store) Seed(ctx context.Context) (admin.SeedResult, error) {
	ds, err := catalog.LoadDataset()
	if err != nil {
		return admin.SeedResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return admin.SeedResult{}, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := seedBatch(ds)
	res := admin.SeedResult{Models: len(ds.Models), Images: len(ds.Images), Products: len(ds.Products)}
	br := tx.SendBatch(ctx, batch)
	stockStart := len(ds.Models) + len(ds.Images) + len(ds.Products)
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return admin.SeedResult{}, fmt.Errorf("seed statement %d: %w", i, err)
		}
		if i >= stockStart {
			res.Stock += int(tag.RowsAffected())
		}
	}
	if err := br.Close(); err != nil {
		return admin.SeedResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return admin.SeedResult{}, fmt.Errorf("commit seed: %w", err)
	}
	return res, nil
}

// seedBatch queues models, images, products and then stock rows, in that order.
func seedBatch(ds catalog.Dataset) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, m := range ds.Models {
		batch.Queue(`
            INSERT INTO car_models (name, make) VALUES ($1, $2)
            ON CONFLICT (name) DO UPDATE SET make = EXCLUDED.make`, m.Name, m.Make)
	}
	for _, img := range ds.Images {
		batch.Queue(`
            INSERT INTO product_images (key, url) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET url = EXCLUDED.url`, img.Key, img.URL)
	}
	for _, p := range ds.Products {
		batch.Queue(`
            INSERT INTO product_catalog (code, model, variant, position, quantity_per_set, price_sen)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (code) DO UPDATE SET
                model = EXCLUDED.model,
                variant = EXCLUDED.variant,
                position = EXCLUDED.position,
                quantity_per_set = EXCLUDED.quantity_per_set,
                price_sen = EXCLUDED.price_sen`,
			p.Code, p.Model, p.Variant, p.Position, p.QuantityPerSet, p.Price)
	}
	for code, qty := range seedStock(ds) {
		batch.Queue(`
            INSERT INTO inventory (code, quantity) VALUES ($1, $2)
            ON CONFLICT (code) DO NOTHING`, code, qty)
	}
	return batch
}

// seedStock is the initial stock for products plus a zero row per shirt size.
func seedStock(ds catalog.Dataset) map[string]int {
	stock := ds.SeedStock()
	for _, size := range gift.Sizes {
		stock[gift.ShirtCode(size)] = 0
	}
	return stock
}
