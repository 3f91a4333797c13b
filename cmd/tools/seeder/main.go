package main

import (
	"context"
	"time"

	"github.com/noah-isme/proride-store/internal/app"
	"github.com/noah-isme/proride-store/internal/config"
	"github.com/noah-isme/proride-store/internal/repo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.NewLogger(cfg, "seeder")

	if err := repo.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := app.OpenPostgres(ctx, cfg.DatabaseURL, "proride-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	res, err := repo.New(pool).Seed(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed catalog")
	}
	logger.Info().
		Int("models", res.Models).
		Int("images", res.Images).
		Int("products", res.Products).
		Int("stock_rows", res.Stock).
		Msg("seeding completed")
}
