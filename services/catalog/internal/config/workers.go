package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// WorkerConfig tunes the catalog's background loops: the outbox publisher
// and the view-record consumer.
type WorkerConfig struct {
	OutboxBatchSize    int
	OutboxPollInterval time.Duration
	ViewsBatchSize     int
	ViewsMaxWait       time.Duration
}

func LoadWorkers() WorkerConfig {
	return WorkerConfig{
		OutboxBatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),
		OutboxPollInterval: time.Duration(envInt("OUTBOX_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		ViewsBatchSize:     envInt("WORKER_BATCH_SIZE", 100),
		ViewsMaxWait:       time.Duration(envInt("WORKER_BATCH_INTERVAL_MS", 2000)) * time.Millisecond,
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
