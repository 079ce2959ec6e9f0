package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docmill/docmill/internal/analyze"
	"github.com/docmill/docmill/internal/blob"
	"github.com/docmill/docmill/internal/classify"
	"github.com/docmill/docmill/internal/config"
	"github.com/docmill/docmill/internal/db"
	"github.com/docmill/docmill/internal/extract"
	"github.com/docmill/docmill/internal/jobs"
	"github.com/docmill/docmill/internal/logger"
	"github.com/docmill/docmill/internal/nats"
	"github.com/docmill/docmill/internal/results"
	"github.com/docmill/docmill/internal/worker"
)

// The worker binary consumes dispatches published by the API server. It
// only makes sense with a shared durable store; the in-memory driver would
// never see jobs the API created.
func main() {
	logger.Init("docmill-worker")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.StoreDriver == "memory" {
		logger.Logger.Fatal().Msg("The worker requires a durable store shared with the API server")
	}

	store, database := openStore(cfg)
	defer database.Close()

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		store = db.NewCachedStore(store, client, cfg.CacheTTL)
	}

	blobs := openBlobStore(cfg)

	lifecycle := jobs.NewLifecycle(store)
	pipeline := worker.NewPipeline(
		lifecycle,
		blobs,
		extract.NewPlainTextExtractor(),
		classify.NewKeywordClassifier(),
		analyze.NewClient(analyze.Config{
			BaseURL:     cfg.AnalyzerBaseURL,
			APIKey:      cfg.AnalyzerAPIKey,
			Model:       cfg.AnalyzerModel,
			Temperature: cfg.AnalyzerTemperature,
			Timeout:     cfg.AnalyzerTimeout,
		}),
		results.NewSQLStore(database, cfg.StoreDriver == "postgres"),
	)

	queue := worker.NewQueue(pipeline,
		worker.WithWorkers(cfg.WorkerCount),
		worker.WithQueueSize(cfg.QueueSize),
		worker.WithJobTimeout(cfg.JobTimeout),
	)

	server, err := nats.NewServer(cfg.NATSURL, store, queue)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	if err := server.Subscribe(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to subscribe")
	}
	logger.Logger.Info().
		Str("url", cfg.NATSURL).
		Int("workers", cfg.WorkerCount).
		Msg("Worker started, consuming dispatches")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info().Msg("Shutting down gracefully...")
	server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	logger.Logger.Info().Msg("Worker stopped")
}

func openStore(cfg *config.Config) (jobs.Store, *sql.DB) {
	switch cfg.StoreDriver {
	case "sqlite":
		store, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to open SQLite store")
		}
		return store, store.DB()
	case "postgres":
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		return db.NewPostgresStore(database), database
	default:
		logger.Logger.Fatal().Str("driver", cfg.StoreDriver).Msg("Unknown store driver")
		return nil, nil
	}
}

func openBlobStore(cfg *config.Config) blob.Store {
	if cfg.BlobDriver == "minio" {
		store, err := blob.NewMinioStore(context.Background(), blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect to object store")
		}
		return store
	}
	logger.Logger.Warn().Msg("Using in-memory blob store; uploads from the API server are not visible here")
	return blob.NewMemoryStore()
}
