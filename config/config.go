// Package config centralises configuration parsing for the offline core.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures runtime configuration for the cache store, record store,
// sync coordinator, and notification scheduler.
type Config struct {
	CacheDir           string        // Root directory holding cache partitions.
	CacheVersionPrefix string        // Current partition version prefix, e.g. "v2".
	RecordDBPath       string        // SQLite file backing the record store.
	RemoteBaseURL      string        // Base URL of the Khyrie API.
	RemoteTimeout      time.Duration // Per-request timeout for remote calls.
	SyncPollInterval   time.Duration // Interval between periodic sync passes.
	SyncBatchSize      int           // Max records pushed per pass per collection.
	ClockInterval      time.Duration // Granularity of notification clock checks.
	ActivityInterval   time.Duration // Family-activity polling cadence.
	PushEndpoint       string        // Push dispatch channel URL; empty disables push.
	PushToken          string        // Subscription token for the push channel.
}

// Load reads environment variables into Config, applying sensible defaults for
// local dev.
func Load() Config {
	return Config{
		CacheDir:           getEnv("KHYRIE_CACHE_DIR", "khyrie-cache"),
		CacheVersionPrefix: getEnv("KHYRIE_CACHE_VERSION", "v2"),
		RecordDBPath:       getEnv("KHYRIE_RECORD_DB", "khyrie-records.db"),
		RemoteBaseURL:      getEnv("KHYRIE_API_URL", "http://localhost:8000"),
		RemoteTimeout:      getDurationEnv("KHYRIE_REMOTE_TIMEOUT", 10*time.Second),
		SyncPollInterval:   getDurationEnv("KHYRIE_SYNC_POLL_INTERVAL", 2*time.Minute),
		SyncBatchSize:      getIntEnv("KHYRIE_SYNC_BATCH_SIZE", 25),
		ClockInterval:      getDurationEnv("KHYRIE_CLOCK_INTERVAL", time.Minute),
		ActivityInterval:   getDurationEnv("KHYRIE_ACTIVITY_INTERVAL", 5*time.Minute),
		PushEndpoint:       getEnv("KHYRIE_PUSH_ENDPOINT", ""),
		PushToken:          getEnv("KHYRIE_PUSH_TOKEN", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
