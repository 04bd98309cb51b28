package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/cohortex/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// redisQuote is the stored value under price:<cohortId>.
type redisQuote struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

func priceKey(cohortID string) string {
	return "price:" + cohortID
}

// RedisPriceCache is a PriceCache shared across processes through Redis.
// Expiry is enforced by the key TTL and re-checked on read.
type RedisPriceCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewRedisClient creates a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisPriceCache wraps an already-connected client. The caller owns
// the client and closes it on shutdown.
func NewRedisPriceCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisPriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &RedisPriceCache{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

func (c *RedisPriceCache) Get(ctx context.Context, cohortID string) (domain.PriceQuote, bool) {
	raw, err := c.client.Get(ctx, priceKey(cohortID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PriceQuote{}, false
	}
	if err != nil {
		c.logger.Warn("price cache read failed",
			slog.String("cohort_id", cohortID),
			slog.String("error", err.Error()),
		)
		return domain.PriceQuote{}, false
	}

	q, err := decodeQuote(cohortID, raw)
	if err != nil {
		c.logger.Warn("price cache entry unreadable",
			slog.String("cohort_id", cohortID),
			slog.String("error", err.Error()),
		)
		return domain.PriceQuote{}, false
	}
	if !q.FreshAt(c.now(), c.ttl) {
		return domain.PriceQuote{}, false
	}
	return q, true
}

func (c *RedisPriceCache) Set(ctx context.Context, cohortID string, price decimal.Decimal, now time.Time) error {
	raw, err := encodeQuote(price, now)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, priceKey(cohortID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set price for %s: %w", cohortID, err)
	}
	return nil
}

func encodeQuote(price decimal.Decimal, now time.Time) ([]byte, error) {
	return json.Marshal(redisQuote{Price: price, Timestamp: now.UTC()})
}

func decodeQuote(cohortID string, raw []byte) (domain.PriceQuote, error) {
	var v redisQuote
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{CohortID: cohortID, Price: v.Price, ObservedAt: v.Timestamp}, nil
}
