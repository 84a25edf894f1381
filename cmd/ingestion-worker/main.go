package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"subject-choices/internal/analysis"
	"subject-choices/internal/config"
	"subject-choices/internal/db"
	"subject-choices/internal/logger"
	"subject-choices/internal/queue"
	"subject-choices/internal/storage"
	"subject-choices/internal/subjects"
	"subject-choices/internal/worker"
	"subject-choices/pkg/errors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, "ingestion-worker")
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting ingestion worker")

	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	repo := db.NewRepository(database)

	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	store, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize file storage")
	}

	catalog, err := subjects.DefaultCatalog()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load built-in subject catalog")
	}

	svc := analysis.NewService(cfg, repo, store, catalog)
	consumer := queue.NewConsumer(redisClient.Client(), cfg.Redis.IngestionQueue, cfg.Redis.DLQSuffix)
	ingestionWorker := worker.NewIngestionWorker(svc, consumer, cfg.Workers.Ingestion.Count)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ingestionWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Ingestion worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down ingestion worker...")

	cancel()
	<-done

	log.Info().Msg("Ingestion worker exited")
}
