// Package config loads service configuration from the environment. A .env
// file is honored for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	HTTPAddr string

	// Job store selection.
	StoreDriver   string // memory | sqlite | postgres
	DatabaseURL   string
	SQLitePath    string
	MigrationsDir string

	// Optional Redis snapshot cache for hot polling.
	RedisAddr string
	RedisDB   int
	CacheTTL  time.Duration

	// Dispatch: inline runs pipelines in-process, nats publishes to a
	// standalone worker.
	DispatchMode string // inline | nats
	NATSURL      string

	// Blob storage for raw documents.
	BlobDriver     string // memory | minio
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// External structured-extraction service.
	AnalyzerBaseURL     string
	AnalyzerAPIKey      string
	AnalyzerModel       string
	AnalyzerTemperature float64
	AnalyzerTimeout     time.Duration

	// Pipeline workers.
	WorkerCount    int
	QueueSize      int
	JobTimeout     time.Duration
	MaxUploadBytes int64
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		StoreDriver:   getEnv("STORE_DRIVER", "sqlite"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "docmill.db"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   getEnvAsInt("REDIS_DB", 0),
		CacheTTL:  getEnvAsDuration("CACHE_TTL", time.Hour),

		DispatchMode: getEnv("DISPATCH_MODE", "inline"),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),

		BlobDriver:     getEnv("BLOB_DRIVER", "memory"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "docmill-documents"),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),

		AnalyzerBaseURL:     getEnv("ANALYZER_BASE_URL", "https://api.openai.com/v1"),
		AnalyzerAPIKey:      getEnv("ANALYZER_API_KEY", ""),
		AnalyzerModel:       getEnv("ANALYZER_MODEL", "gpt-4o-mini"),
		AnalyzerTemperature: getEnvAsFloat("ANALYZER_TEMPERATURE", 0.0),
		AnalyzerTimeout:     getEnvAsDuration("ANALYZER_TIMEOUT", 90*time.Second),

		WorkerCount:    getEnvAsInt("WORKER_COUNT", 4),
		QueueSize:      getEnvAsInt("QUEUE_SIZE", 256),
		JobTimeout:     getEnvAsDuration("JOB_TIMEOUT", 10*time.Minute),
		MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 20<<20),
	}
}

// Validate checks driver-specific requirements.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.BlobDriver {
	case "memory":
	case "minio":
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio blob store")
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}

	switch c.DispatchMode {
	case "inline":
	case "nats":
		// The worker process can only see jobs through a store shared with
		// the publisher; an in-memory store strands every dispatch at queued.
		if c.StoreDriver == "memory" {
			return fmt.Errorf("DISPATCH_MODE=nats requires a durable STORE_DRIVER shared with the worker, not memory")
		}
	default:
		return fmt.Errorf("unknown DISPATCH_MODE %q", c.DispatchMode)
	}

	if c.AnalyzerAPIKey == "" {
		return fmt.Errorf("ANALYZER_API_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
