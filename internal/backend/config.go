package backend

import (
	"fmt"

	"sitefin/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cacheType := CacheType(appConfig.CacheBackend)
	if !cacheType.IsValid() {
		return Config{}, fmt.Errorf("invalid cache backend in config: %s", appConfig.CacheBackend)
	}

	return Config{
		SQLiteDBPath: appConfig.SQLiteDBPath,

		CountPolicy:       appConfig.Policy(),
		RepairConcurrency: appConfig.RepairConcurrency,

		CacheType: cacheType,
		CacheSize: appConfig.CacheSize,
		CacheTTL:  appConfig.CacheTTL,
		RedisURL:  appConfig.RedisURL,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required")
	}
	if !c.CacheType.IsValid() {
		return fmt.Errorf("invalid cache type: %s", c.CacheType)
	}

	switch c.CacheType {
	case MemoryCache:
		if c.CacheSize < 1 {
			return fmt.Errorf("cache size must be positive for memory cache")
		}
	case RedisCache:
		if c.RedisURL == "" {
			return fmt.Errorf("Redis URL is required for redis cache")
		}
	case NoCache:
		// Reads always go to the database
	}

	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return fmt.Errorf("AMQP exchange is required when AMQP URL is set")
	}

	return nil
}

// GetCacheTypes returns all valid cache types
func GetCacheTypes() []CacheType {
	return []CacheType{MemoryCache, RedisCache, NoCache}
}

// GetCacheTypeStrings returns all valid cache type strings
func GetCacheTypeStrings() []string {
	types := GetCacheTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
