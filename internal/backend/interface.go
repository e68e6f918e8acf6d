package backend

import (
	"context"
	"time"

	"sitefin/internal/core"
	"sitefin/internal/notify"
	"sitefin/internal/services"
	"sitefin/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired ledger and the cleanup function that
// releases everything the factory opened.
type BackendResult struct {
	Ledger   *services.LedgerService
	Store    *storage.SQLiteRepository
	Notifier *notify.Notifier
	Cache    services.SummaryCache
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens storage and builds the ledger on top of it
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Storage
	SQLiteDBPath string

	// Ledger
	CountPolicy       core.CountPolicy
	RepairConcurrency int

	// Summary cache
	CacheType CacheType
	CacheSize int
	CacheTTL  time.Duration
	RedisURL  string

	// Change notification
	SubscriberBuffer int
	AMQPURL          string
	AMQPExchange     string
}

// CacheType represents the summary cache backend
type CacheType string

const (
	MemoryCache CacheType = "memory"
	RedisCache  CacheType = "redis"
	NoCache     CacheType = "none"
)

// String implements fmt.Stringer
func (ct CacheType) String() string {
	return string(ct)
}

// IsValid returns true if the cache type is valid
func (ct CacheType) IsValid() bool {
	switch ct {
	case MemoryCache, RedisCache, NoCache:
		return true
	default:
		return false
	}
}
