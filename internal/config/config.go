package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	defaultListenAddr        = ":8080"
	defaultBrokerURL         = "http://localhost:8080"
	defaultResultStore       = "distribute.db"
	defaultQueue             = "tasks"
	defaultBackend           = "local"
	defaultWorkerConcurrency = 1
	defaultEmbeddedWorkers   = 0

	envListenAddr        = "DISTRIBUTE_LISTEN_ADDR"
	envBrokerURL         = "DISTRIBUTE_BROKER_URL"
	envResultStore       = "DISTRIBUTE_RESULT_STORE"
	envQueue             = "DISTRIBUTE_QUEUE"
	envBackend           = "DISTRIBUTE_BACKEND"
	envWorkerConcurrency = "DISTRIBUTE_WORKER_CONCURRENCY"
	envLogLevel          = "DISTRIBUTE_LOG_LEVEL"
	envEmbeddedWorkers   = "DISTRIBUTE_EMBEDDED_WORKERS"
	envMetricsAddr       = "DISTRIBUTE_METRICS_ADDR"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	// ListenAddr is where the queue service serves HTTP.
	ListenAddr string
	// BrokerURL is the queue service base URL used by clients and workers.
	BrokerURL string
	// ResultStore is the SQLite database path of the queue service.
	ResultStore string
	// Queue is the queue tasks are submitted to and claimed from.
	Queue string
	// Backend names the execution backend: local, queue or auto.
	Backend           string
	WorkerConcurrency int
	// EmbeddedWorkers is the number of worker loops the queue service runs
	// in its own process. Zero runs none.
	EmbeddedWorkers int
	// MetricsAddr, when set, is where a worker process serves /metrics.
	MetricsAddr string
	LogLevel    slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:        defaultListenAddr,
		BrokerURL:         defaultBrokerURL,
		ResultStore:       defaultResultStore,
		Queue:             defaultQueue,
		Backend:           defaultBackend,
		WorkerConcurrency: defaultWorkerConcurrency,
		EmbeddedWorkers:   defaultEmbeddedWorkers,
		LogLevel:          slog.LevelInfo,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envBrokerURL); v != "" {
		cfg.BrokerURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(envResultStore); v != "" {
		cfg.ResultStore = v
	}
	if v := os.Getenv(envQueue); v != "" {
		cfg.Queue = v
	}
	if v := os.Getenv(envBackend); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(envWorkerConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerConcurrency = n
		}
	}
	if v := os.Getenv(envEmbeddedWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.EmbeddedWorkers = n
		}
	}
	if v := os.Getenv(envMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}

	return cfg
}

// ParseLogLevel converts a level name to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
