package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/questdeck/questdeck/internal/queue"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; DATABASE_URL is required only when the
// postgres queue backend is selected.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Queue backend
	QueueBackend queue.Backend
	DatabaseURL  string
	DBMaxConns   int32
	DBMinConns   int32

	// Language model
	LLMBaseURL       string
	LLMModel         string
	LLMTimeout       time.Duration
	LLMRatePerSecond int
	LLMMaxConcurrent int
	LLMBatchSize     int

	// Asset generation
	AssetBaseURL   string
	AssetTimeout   time.Duration
	AssetBatchSize int

	// Worker timing
	RecoveryInterval time.Duration
	WorkerBackoff    time.Duration
	NotifyRetryIn    time.Duration

	// Approval gate
	MaxApprovalRetries int
	ApprovalExpiry     time.Duration

	// Maintenance
	CleanupInterval time.Duration
	Retention       time.Duration

	// Session
	ParticipantBuffer int
	ActionRatePerSec  int
}

func Load() (*Config, error) {
	backend := queue.Backend(getEnv("QUEUE_BACKEND", string(queue.BackendMemory)))
	if !backend.IsValid() {
		return nil, fmt.Errorf("unsupported QUEUE_BACKEND %q", backend)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if backend == queue.BackendPostgres && dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres queue backend")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		QueueBackend: backend,
		DatabaseURL:  dbURL,
		DBMaxConns:   int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:   int32(getInt("DB_MIN_CONNS", 5)),

		LLMBaseURL:       getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMModel:         getEnv("LLM_MODEL", "llama3.1"),
		LLMTimeout:       getDuration("LLM_TIMEOUT", 60*time.Second),
		LLMRatePerSecond: getInt("LLM_RATE_PER_SECOND", 10),
		LLMMaxConcurrent: getInt("LLM_MAX_CONCURRENT", 3),
		LLMBatchSize:     getInt("LLM_BATCH_SIZE", 5),

		AssetBaseURL:   getEnv("ASSET_BASE_URL", "http://localhost:8188"),
		AssetTimeout:   getDuration("ASSET_TIMEOUT", 30*time.Second),
		AssetBatchSize: getInt("ASSET_BATCH_SIZE", 2),

		RecoveryInterval: getDuration("RECOVERY_INTERVAL", 5*time.Second),
		WorkerBackoff:    getDuration("WORKER_BACKOFF", 2*time.Second),
		NotifyRetryIn:    getDuration("NOTIFY_RETRY_IN", 30*time.Second),

		MaxApprovalRetries: getInt("MAX_APPROVAL_RETRIES", 3),
		ApprovalExpiry:     getDuration("APPROVAL_EXPIRY", 30*time.Minute),

		CleanupInterval: getDuration("CLEANUP_INTERVAL", time.Minute),
		Retention:       getDuration("RETENTION", time.Hour),

		ParticipantBuffer: getInt("PARTICIPANT_BUFFER", 64),
		ActionRatePerSec:  getInt("ACTION_RATE_PER_SECOND", 5),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
