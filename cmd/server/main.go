package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docmill/docmill/internal/analyze"
	"github.com/docmill/docmill/internal/api"
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

func main() {
	logger.Init("docmill-api")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	store, database := openStore(cfg)
	if database != nil {
		defer database.Close()
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		store = db.NewCachedStore(store, client, cfg.CacheTTL)
		logger.Logger.Info().Str("addr", cfg.RedisAddr).Msg("Job snapshot cache enabled")
	}

	blobs := openBlobStore(cfg)
	resultStore := openResultStore(cfg, database)

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
		resultStore,
	)

	var (
		dispatcher worker.Dispatcher
		queue      *worker.Queue
		natsClient *nats.Client
	)
	if cfg.DispatchMode == "nats" {
		client, err := nats.NewClient(cfg.NATSURL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		natsClient = client
		dispatcher = client
		logger.Logger.Info().Str("url", cfg.NATSURL).Msg("Dispatching jobs via NATS")
	} else {
		queue = worker.NewQueue(pipeline,
			worker.WithWorkers(cfg.WorkerCount),
			worker.WithQueueSize(cfg.QueueSize),
			worker.WithJobTimeout(cfg.JobTimeout),
		)
		dispatcher = queue
	}

	var pinger api.Pinger
	if database != nil {
		pinger = database
	}
	health := api.NewHealthHandler(pinger, "docmill-api")

	mux := http.NewServeMux()
	api.AddRoutes(mux, lifecycle, dispatcher, api.HeaderAuthenticator{}, health, cfg.MaxUploadBytes)

	server := api.NewServer(cfg.HTTPAddr, mux)
	go func() {
		if err := server.Start(); err != nil {
			logger.Logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if queue != nil {
		queue.Shutdown(shutdownCtx)
	}
	if natsClient != nil {
		natsClient.Close()
	}
	logger.Logger.Info().Msg("Server stopped")
}

// openStore returns the configured job store and, for SQL-backed drivers,
// the shared database handle.
func openStore(cfg *config.Config) (jobs.Store, *sql.DB) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Logger.Warn().Msg("Using in-memory job store; jobs will not survive restarts")
		return db.NewMemoryStore(), nil
	case "sqlite":
		store, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to open SQLite store")
		}
		logger.Logger.Info().Str("path", cfg.SQLitePath).Msg("Using SQLite job store")
		return store, store.DB()
	case "postgres":
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		logger.Logger.Info().Msg("Using PostgreSQL job store")
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
		logger.Logger.Info().Str("endpoint", cfg.MinioEndpoint).Msg("Using MinIO blob store")
		return store
	}
	logger.Logger.Warn().Msg("Using in-memory blob store; documents will not survive restarts")
	return blob.NewMemoryStore()
}

func openResultStore(cfg *config.Config, database *sql.DB) results.Store {
	if database == nil {
		return results.NewMemoryStore()
	}
	return results.NewSQLStore(database, cfg.StoreDriver == "postgres")
}
