package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"subject-choices/internal/analysis"
	"subject-choices/internal/api"
	"subject-choices/internal/auth"
	"subject-choices/internal/config"
	"subject-choices/internal/db"
	"subject-choices/internal/logger"
	"subject-choices/internal/queue"
	"subject-choices/internal/storage"
	"subject-choices/internal/subjects"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, "api")
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	repo := db.NewRepository(database)

	store, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize file storage")
	}

	catalog, err := subjects.DefaultCatalog()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load built-in subject catalog")
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token verification")
	}

	svc := analysis.NewService(cfg, repo, store, catalog)

	// Without Redis, uploads can still be processed synchronously.
	var producer api.JobEnqueuer
	if cfg.Redis.Host != "" {
		redisClient, err := queue.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		producer = queue.NewProducer(redisClient.Client(), cfg.Redis.IngestionQueue)
	} else {
		log.Warn().Msg("Redis not configured, asynchronous processing disabled")
	}

	handler := api.NewHandler(svc, producer, cfg)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.RecoveryMiddleware())
	router.Use(api.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(api.LoggingMiddleware())
	router.MaxMultipartMemory = cfg.Uploads.MaxBytes

	api.SetupRoutes(router, handler, tokens)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
