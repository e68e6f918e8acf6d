package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitefin/internal/amqp"
	"sitefin/internal/cache"
	"sitefin/internal/notify"
	"sitefin/internal/services"
	"sitefin/internal/storage"
)

const cacheCleanupInterval = time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With("component", "backend"),
	}
}

// CreateBackend implements Factory.CreateBackend. On failure everything
// opened so far is closed again.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	closers = append(closers, repo.Close)

	summaryCache, closeCache, err := f.createCache(ctx, config)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	publishers, closePublisher := f.createPublishers(config)
	if closePublisher != nil {
		closers = append(closers, closePublisher)
	}

	notifier := notify.NewNotifier(notify.NewHub(config.SubscriberBuffer), publishers...)
	ledger := services.NewLedgerService(repo, summaryCache, notifier, services.LedgerConfig{
		Policy:            config.CountPolicy,
		RepairConcurrency: config.RepairConcurrency,
	})

	f.logger.Info("Initialized ledger backend",
		"db_path", config.SQLiteDBPath,
		"cache", config.CacheType,
		"count_policy", ledger.Policy(),
		"amqp_enabled", len(publishers) > 0)

	return &BackendResult{
		Ledger:   ledger,
		Store:    repo,
		Notifier: notifier,
		Cache:    summaryCache,
		Cleanup:  cleanup,
	}, nil
}

func (f *DefaultFactory) createCache(ctx context.Context, config Config) (services.SummaryCache, CleanupFunc, error) {
	switch config.CacheType {
	case MemoryCache:
		lru := cache.NewSummaryLRU(config.CacheSize, config.CacheTTL)
		manager := cache.NewManager()
		manager.Register(lru)
		manager.StartCleanup(cacheCleanupInterval)
		return lru, func() error { manager.Stop(); return nil }, nil

	case RedisCache:
		client, err := cache.Connect(ctx, config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return cache.NewRedisSummaryCache(client, "", config.CacheTTL), client.Close, nil

	default:
		return nil, nil, nil
	}
}

// createPublishers wires the AMQP publisher when configured. A broker that is
// down at startup only disables mirroring; the ledger keeps serving.
func (f *DefaultFactory) createPublishers(config Config) ([]notify.Publisher, CleanupFunc) {
	if config.AMQPURL == "" {
		return nil, nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, "")
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without mirror events", "error", err)
		return nil, nil
	}

	f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange)
	return []notify.Publisher{client}, client.Close
}
