package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"certEngine/internal/api"
	"certEngine/internal/assets"
	"certEngine/internal/certificate"
	"certEngine/internal/config"
	"certEngine/internal/database"
	"certEngine/internal/editor"
	"certEngine/internal/fonts"
	"certEngine/internal/pdf"
	"certEngine/internal/storage"
	"certEngine/internal/store"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("api bootstrapped",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
		slog.String("db_sslmode", cfg.Database.SSLMode),
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database migrated")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
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

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	family, err := fonts.Load(cfg.Certificate.FontRegular, cfg.Certificate.FontBold, logger)
	if err != nil {
		log.Fatalf("load fonts: %v", err)
	}
	images := assets.NewFetcher(storageClient, assets.Options{
		Timeout:  cfg.Certificate.FetchTimeout,
		MaxBytes: cfg.Certificate.MaxImageBytes,
	}, logger)
	records := store.NewCachedStore(store.NewGormStore(db), redisClient, cfg.Redis.TemplateTTL, logger)
	sink := pdf.NewGenerator(family, nil)

	opts := certificate.Options{
		Page:              cfg.Certificate.Page(),
		DefaultBackground: cfg.Certificate.DefaultBackgroundRef(),
	}
	compositor, err := certificate.NewCompositor(records, images, family, sink, opts, logger)
	if err != nil {
		log.Fatalf("init compositor: %v", err)
	}
	opts.RequireTemplate = true
	direct, err := certificate.NewCompositor(records, images, family, sink, opts, logger)
	if err != nil {
		log.Fatalf("init direct compositor: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	var scanner api.VirusScanner
	if cfg.Clamd.Enabled {
		scanner = api.NewClamdScanner(cfg.Clamd.Address)
		logger.Info("upload scanning enabled", slog.String("clamd", cfg.Clamd.Address))
	}

	router, err := api.NewRouter(logger)
	if err != nil {
		log.Fatalf("init router: %v", err)
	}
	api.RegisterRoutes(router, api.Deps{
		Config:     cfg,
		Store:      records,
		Compositor: compositor,
		Direct:     direct,
		Images:     images,
		Metrics:    family,
		Canvas:     editor.NewCanvas(opts.Page, family, family),
		Objects:    storageClient,
		Tasks:      asynqClient,
		Redis:      redisClient,
		Scanner:    scanner,
		Logger:     logger,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("address", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
