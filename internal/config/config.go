package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"sitefin/internal/core"
	"sitefin/internal/log"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Database
	SQLiteDBPath string

	// Ledger
	CountPolicy       string
	RepairConcurrency int

	// Summary cache
	CacheBackend string
	CacheSize    int
	CacheTTL     time.Duration
	RedisURL     string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID  string
	GoogleSheetName      string
	MirrorResyncInterval time.Duration

	// Logging
	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/sitefin.db"),

		CountPolicy:       getEnv("COUNT_POLICY", string(core.CountAll)),
		RepairConcurrency: getEnvInt("REPAIR_CONCURRENCY", 4),

		CacheBackend: getEnv("CACHE_BACKEND", CacheMemory),
		CacheSize:    getEnvInt("CACHE_SIZE", 1000),
		CacheTTL:     getEnvDuration("CACHE_TTL", 10*time.Minute),
		RedisURL:     getEnv("REDIS_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "sitefin"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "summary_mirror"),

		GoogleSpreadsheetID:  getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:      getEnv("GOOGLE_SHEET_NAME", "Summaries"),
		MirrorResyncInterval: getEnvDuration("MIRROR_RESYNC_INTERVAL", 15*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Policy returns the parsed count policy. Validate reports bad values.
func (c *Config) Policy() core.CountPolicy {
	p, err := core.ParseCountPolicy(c.CountPolicy)
	if err != nil {
		return core.CountAll
	}
	return p
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if _, err := core.ParseCountPolicy(c.CountPolicy); err != nil {
		errors = append(errors, err.Error())
	}

	if c.RepairConcurrency < 1 || c.RepairConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid repair concurrency %d: must be between 1 and 64", c.RepairConcurrency))
	}

	validCaches := []string{CacheMemory, CacheRedis, CacheNone}
	if !slices.Contains(validCaches, c.CacheBackend) {
		errors = append(errors, fmt.Sprintf("invalid cache backend '%s': must be one of %v", c.CacheBackend, validCaches))
	}
	if c.CacheBackend == CacheMemory && c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheBackend != CacheNone && c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.CacheBackend == CacheRedis && c.RedisURL == "" {
		errors = append(errors, "REDIS_URL is required when using redis cache backend")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.MirrorResyncInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid mirror resync interval %v: must be at least 1 minute", c.MirrorResyncInterval))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateMirror checks the settings only the mirror worker needs.
func (c *Config) ValidateMirror() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the mirror worker")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty for the mirror worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the mirror worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("mirror configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
