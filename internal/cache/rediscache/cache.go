// Package rediscache is a candle.Cache backed by Redis.
//
// Each interval owns two keys: a sorted set of bucket starts (score is the
// bucket start in unix milliseconds) and a hash from bucket start to the
// JSON encoded candle.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/matchbook/internal/candle"
	"github.com/efreitasn/matchbook/internal/domain"
)

var _ candle.Cache = (*Cache)(nil)

// Options configures a Cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the keys, usually with the instrument.
	Prefix string
	// TTL refreshes the expiry of an interval's keys on every write. Zero
	// keeps them forever.
	TTL time.Duration
}

type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New connects a Cache to a single Redis node.
func New(opts Options) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(rdb, opts.Prefix, opts.TTL)
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) indexKey(interval string) string {
	return fmt.Sprintf("%scandles:%s:idx", c.prefix, interval)
}

func (c *Cache) dataKey(interval string) string {
	return fmt.Sprintf("%scandles:%s:data", c.prefix, interval)
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Put implements candle.Cache.
func (c *Cache) Put(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	touched := make(map[string]struct{})
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, cd := range candles {
			val, err := json.Marshal(cd)
			if err != nil {
				return fmt.Errorf("encode candle: %w", err)
			}
			ms := cd.BucketStart.UnixMilli()
			member := strconv.FormatInt(ms, 10)
			pipe.ZAdd(ctx, c.indexKey(cd.Interval), redis.Z{Score: float64(ms), Member: member})
			pipe.HSet(ctx, c.dataKey(cd.Interval), member, val)
			touched[cd.Interval] = struct{}{}
		}
		if c.ttl > 0 {
			for iv := range touched {
				pipe.Expire(ctx, c.indexKey(iv), c.ttl)
				pipe.Expire(ctx, c.dataKey(iv), c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put candles: %w", err)
	}
	return nil
}

// Range implements candle.Cache.
func (c *Cache) Range(ctx context.Context, interval string, from, to time.Time) ([]domain.Candle, error) {
	result := make([]domain.Candle, 0)
	if to.Before(from) {
		return result, nil
	}

	members, err := c.client.ZRangeByScore(ctx, c.indexKey(interval), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if errors.Is(err, redis.Nil) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: range candles: %w", err)
	}
	if len(members) == 0 {
		return result, nil
	}

	values, err := c.client.HMGet(ctx, c.dataKey(interval), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read candles: %w", err)
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// index entry without data, e.g. the hash expired first
			continue
		}
		var cd domain.Candle
		if err := json.Unmarshal([]byte(s), &cd); err != nil {
			return nil, fmt.Errorf("redis: decode candle: %w", err)
		}
		result = append(result, cd)
	}
	return result, nil
}
