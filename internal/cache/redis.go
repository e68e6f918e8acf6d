package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"sitefin/internal/core"
)

// putIfNewer stores the summary only when no entry with an equal or higher
// revision exists.
var putIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'revision')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'revision', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisSummaryCache shares summaries between processes. Failures degrade to
// cache misses; the database stays authoritative.
type RedisSummaryCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSummaryCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSummaryCache {
	if prefix == "" {
		prefix = "sitefin:summary:"
	}
	return &RedisSummaryCache{client: client, prefix: prefix, ttl: ttl}
}

type summaryRecord struct {
	SiteID                      string    `json:"site_id"`
	FundsReceived               int64     `json:"funds_received"`
	FundsReceivedFromSupervisor int64     `json:"funds_received_from_supervisor"`
	TotalExpenses               int64     `json:"total_expenses"`
	TotalAdvances               int64     `json:"total_advances"`
	TotalInvoices               int64     `json:"total_invoices"`
	AdvancePaidToSupervisor     int64     `json:"advance_paid_to_supervisor"`
	Balance                     int64     `json:"balance"`
	Revision                    int64     `json:"revision"`
	UpdatedAt                   time.Time `json:"updated_at"`
}

func encodeSummary(s core.Summary) ([]byte, error) {
	return json.Marshal(summaryRecord{
		SiteID:                      s.SiteID,
		FundsReceived:               s.FundsReceived.Cents,
		FundsReceivedFromSupervisor: s.FundsReceivedFromSupervisor.Cents,
		TotalExpenses:               s.TotalExpenses.Cents,
		TotalAdvances:               s.TotalAdvances.Cents,
		TotalInvoices:               s.TotalInvoices.Cents,
		AdvancePaidToSupervisor:     s.AdvancePaidToSupervisor.Cents,
		Balance:                     s.Balance.Cents,
		Revision:                    s.Revision,
		UpdatedAt:                   s.UpdatedAt,
	})
}

func decodeSummary(data []byte) (core.Summary, error) {
	var r summaryRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return core.Summary{}, err
	}
	return core.Summary{
		SiteID:                      r.SiteID,
		FundsReceived:               core.Money{Cents: r.FundsReceived},
		FundsReceivedFromSupervisor: core.Money{Cents: r.FundsReceivedFromSupervisor},
		TotalExpenses:               core.Money{Cents: r.TotalExpenses},
		TotalAdvances:               core.Money{Cents: r.TotalAdvances},
		TotalInvoices:               core.Money{Cents: r.TotalInvoices},
		AdvancePaidToSupervisor:     core.Money{Cents: r.AdvancePaidToSupervisor},
		Balance:                     core.Money{Cents: r.Balance},
		Revision:                    r.Revision,
		UpdatedAt:                   r.UpdatedAt,
	}, nil
}

func (c *RedisSummaryCache) key(siteID string) string {
	return c.prefix + siteID
}

func (c *RedisSummaryCache) Get(ctx context.Context, siteID string) (core.Summary, bool) {
	data, err := c.client.HGet(ctx, c.key(siteID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Summary{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "Redis summary read failed", "component", "cache", "site_id", siteID, "error", err)
		return core.Summary{}, false
	}
	s, err := decodeSummary(data)
	if err != nil {
		slog.WarnContext(ctx, "Corrupt cached summary", "component", "cache", "site_id", siteID, "error", err)
		return core.Summary{}, false
	}
	return s, true
}

func (c *RedisSummaryCache) Put(ctx context.Context, s core.Summary) {
	data, err := encodeSummary(s)
	if err != nil {
		slog.WarnContext(ctx, "Encode summary failed", "component", "cache", "site_id", s.SiteID, "error", err)
		return
	}
	err = putIfNewer.Run(ctx, c.client, []string{c.key(s.SiteID)}, s.Revision, data, c.ttl.Milliseconds()).Err()
	if err != nil {
		slog.WarnContext(ctx, "Redis summary write failed", "component", "cache", "site_id", s.SiteID, "error", err)
	}
}

func (c *RedisSummaryCache) Delete(ctx context.Context, siteID string) {
	if err := c.client.Del(ctx, c.key(siteID)).Err(); err != nil {
		slog.WarnContext(ctx, "Redis summary delete failed", "component", "cache", "site_id", siteID, "error", err)
	}
}
