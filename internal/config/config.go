// Package config loads the bqdestination host configuration from the
// environment, and an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/rounds/go-bqdestination/async"
	"github.com/rounds/go-bqdestination/async/worker"
)

const DefaultHTTPTimeout = 30 * time.Second

type Config struct {
	// CredentialsPath is the service account JSON key path.
	CredentialsPath string
	ProjectID       string
	DatasetID       string
	TableID         string

	NumWorkers       int
	QueueSize        int
	MaxDelay         time.Duration
	SleepBeforeRetry time.Duration
	MaxRetryInsert   int
	InsertID         bool

	// HTTPTimeout bounds each token exchange and insertAll call.
	HTTPTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the configuration, and returns an error naming the first missing
// required variable.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CredentialsPath:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		ProjectID:        getEnv("BQ_PROJECT_ID", ""),
		DatasetID:        getEnv("BQ_DATASET_ID", ""),
		TableID:          getEnv("BQ_TABLE_ID", ""),
		NumWorkers:       getEnvInt("NUM_WORKERS", async.DefaultNumWorkers),
		QueueSize:        getEnvInt("QUEUE_SIZE", worker.DefaultQueueSize),
		MaxDelay:         getEnvDuration("MAX_DELAY", worker.DefaultMaxDelay),
		SleepBeforeRetry: getEnvDuration("SLEEP_BEFORE_RETRY", worker.DefaultSleepBeforeRetry),
		MaxRetryInsert:   getEnvInt("MAX_RETRY_INSERT", worker.DefaultMaxRetryInsert),
		InsertID:         getEnvBool("INSERT_ID", false),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", DefaultHTTPTimeout),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		LogFormat:        getEnv("LOG_FORMAT", "TEXT"),
	}

	for _, v := range []struct{ key, value string }{
		{"GOOGLE_APPLICATION_CREDENTIALS", cfg.CredentialsPath},
		{"BQ_PROJECT_ID", cfg.ProjectID},
		{"BQ_DATASET_ID", cfg.DatasetID},
		{"BQ_TABLE_ID", cfg.TableID},
	} {
		if v.value == "" {
			return nil, fmt.Errorf("missing required environment variable %s", v.key)
		}
	}

	return cfg, nil
}

// AsyncOptions returns the Streamer options set by cfg.
// Worker options are validated by async.New().
func (cfg *Config) AsyncOptions() []async.OptionFunc {
	return []async.OptionFunc{
		async.SetNumWorkers(cfg.NumWorkers),
		async.SetWorkerOptions(
			worker.SetQueueSize(cfg.QueueSize),
			worker.SetMaxDelay(cfg.MaxDelay),
			worker.SetRetry(cfg.MaxRetryInsert, cfg.SleepBeforeRetry),
		),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		slog.Warn("Invalid integer, using default", "key", key, "value", value, "default", fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration, using default", "key", key, "value", value, "default", fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		slog.Warn("Invalid boolean, using default", "key", key, "value", value, "default", fallback)
	}
	return fallback
}
