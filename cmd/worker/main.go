package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"certEngine/internal/assets"
	"certEngine/internal/batch"
	"certEngine/internal/certificate"
	"certEngine/internal/config"
	"certEngine/internal/database"
	"certEngine/internal/editor"
	"certEngine/internal/fonts"
	"certEngine/internal/metrics"
	"certEngine/internal/pdf"
	"certEngine/internal/storage"
	"certEngine/internal/store"
	"certEngine/internal/tasks"
	"certEngine/internal/worker"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	family, err := fonts.Load(cfg.Certificate.FontRegular, cfg.Certificate.FontBold, logger)
	if err != nil {
		log.Fatalf("load fonts: %v", err)
	}
	images := assets.NewFetcher(storageClient, assets.Options{
		Timeout:  cfg.Certificate.FetchTimeout,
		MaxBytes: cfg.Certificate.MaxImageBytes,
	}, logger)
	records := store.NewCachedStore(store.NewGormStore(db), redisClient, cfg.Redis.TemplateTTL, logger)

	compositor, err := certificate.NewCompositor(records, images, family, pdf.NewGenerator(family, nil), certificate.Options{
		Page:              cfg.Certificate.Page(),
		DefaultBackground: cfg.Certificate.DefaultBackgroundRef(),
	}, logger)
	if err != nil {
		log.Fatalf("init compositor: %v", err)
	}
	canvas := editor.NewCanvas(compositor.Page(), family, family)

	batchHandler := worker.NewBatchTaskHandler(
		batch.NewDriver(compositor, cfg.Certificate.BatchDelay, logger),
		records,
		storageClient,
		redisClient,
		logger,
	)
	previewHandler := worker.NewTemplatePreviewHandler(compositor.Resolver(), canvas, images, storageClient, redisClient, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCertificateBatch, batchHandler)
	mux.Handle(tasks.TypeTemplatePreview, previewHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
