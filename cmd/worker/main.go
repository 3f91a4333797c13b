package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/proride-store/internal/app"
	"github.com/noah-isme/proride-store/internal/config"
	"github.com/noah-isme/proride-store/internal/lock"
	"github.com/noah-isme/proride-store/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.NewLogger(cfg, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.OpenRedis(ctx, cfg.RedisURL, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	mailer, err := app.NewMailer(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise mailer")
	}
	if !cfg.ReceiptEmailEnabled {
		logger.Warn().Msg("receipt email disabled; queued receipts will be dropped")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for tasks")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{notify.QueueMail: 1},
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("type", task.Type()).Msg("task failed")
		}),
	})

	mux := notify.NewMux(notify.ReceiptWorker{
		Mail:    mailer,
		Locker:  &lock.Locker{R: redisClient},
		LockTTL: cfg.LockTTL,
		Logger:  logger,
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
