// Package cache keeps rendered weekly views in Redis.
//
// The cache is optional: a nil client turns every lookup into a miss and
// every write into a no-op, so the service runs the same with or without it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cafeelangel/mesalista/reservation"
)

const (
	keyPrefix     = "reservations:upcoming:"
	generationKey = "reservations:generation:upcoming"
	scanCount     = 100
)

// NewRedisClient parses url and pings the server. It returns nil, with the
// failure logged, when url is empty or the server cannot be reached.
func NewRedisClient(ctx context.Context, url string, logger zerolog.Logger) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, weekly cache disabled")
		return nil
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", opt.Addr).Msg("redis unreachable, weekly cache disabled")
		rdb.Close()
		return nil
	}
	logger.Info().Str("addr", opt.Addr).Msg("redis connected")
	return rdb
}

// commands is the subset of the redis client the cache uses.
type commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// UpcomingSource produces weekly views on a miss.
type UpcomingSource interface {
	Today() reservation.Date
	Upcoming(ctx context.Context, windowDays int) (*reservation.WeeklyView, error)
}

// WeeklyCache caches reservation.WeeklyView by generation, day and window
// size. It also implements reservation.Notifier: any change bumps the
// generation, so views read before the change are never served after it.
type WeeklyCache struct {
	rdb commands
	ttl time.Duration
	log zerolog.Logger
}

// NewWeeklyCache wraps rdb, which may be nil.
func NewWeeklyCache(rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *WeeklyCache {
	c := &WeeklyCache{ttl: ttl, log: logger.With().Str("component", "cache").Logger()}
	if rdb != nil {
		c.rdb = rdb
	}
	return c
}

func (c *WeeklyCache) Enabled() bool { return c.rdb != nil }

// Key is the cache key of the view starting on today spanning days, read
// while the cache was at generation gen.
func Key(gen int64, today reservation.Date, days int) string {
	return fmt.Sprintf("%s%d:%s:%d", keyPrefix, gen, today, days)
}

// Generation returns the current invalidation counter. A missing counter is
// generation 0.
func (c *WeeklyCache) Generation(ctx context.Context) (int64, error) {
	if c.rdb == nil {
		return 0, nil
	}
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached view, or false on a miss or any Redis error.
func (c *WeeklyCache) Get(ctx context.Context, gen int64, today reservation.Date, days int) (*reservation.WeeklyView, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, Key(gen, today, days)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("cache get failed")
		}
		return nil, false
	}
	var view reservation.WeeklyView
	if err := json.Unmarshal(raw, &view); err != nil {
		c.log.Warn().Err(err).Msg("cache entry unreadable")
		return nil, false
	}
	return &view, true
}

// Set stores view under generation gen. An entry written after the
// generation moved on is unreachable and expires with its TTL.
func (c *WeeklyCache) Set(ctx context.Context, gen int64, today reservation.Date, days int, view *reservation.WeeklyView) {
	if c.rdb == nil || view == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache encode failed")
		return
	}
	if err := c.rdb.Set(ctx, Key(gen, today, days), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache set failed")
	}
}

// Upcoming serves src.Upcoming through the cache. days < 1 means
// reservation.DefaultWindowDays, matching the service. The generation is
// read before the source, so a change committed during the read leaves the
// fresh entry under a generation nobody asks for.
func (c *WeeklyCache) Upcoming(ctx context.Context, src UpcomingSource, days int) (*reservation.WeeklyView, error) {
	if days < 1 {
		days = reservation.DefaultWindowDays
	}
	if c.rdb == nil {
		return src.Upcoming(ctx, days)
	}
	gen, err := c.Generation(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache generation unavailable")
		return src.Upcoming(ctx, days)
	}
	today := src.Today()
	if view, ok := c.Get(ctx, gen, today, days); ok {
		return view, nil
	}
	view, err := src.Upcoming(ctx, days)
	if err != nil {
		return nil, err
	}
	c.Set(ctx, gen, today, days, view)
	return view, nil
}

// Notify invalidates every cached weekly view.
func (c *WeeklyCache) Notify(ctx context.Context, e reservation.Event) {
	if c.rdb == nil {
		return
	}
	if err := c.Invalidate(ctx); err != nil {
		c.log.Warn().Err(err).
			Str("event", string(e.Type)).
			Int64("reservation_id", e.ReservationID).
			Msg("cache invalidation failed")
	}
}

// Invalidate bumps the generation, then deletes the keys under the weekly
// view prefix to free memory.
func (c *WeeklyCache) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("incr %s: %w", generationKey, err)
	}
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, keyPrefix+"*", scanCount).Result()
		if err != nil {
			return fmt.Errorf("scan %s*: %w", keyPrefix, err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del %d keys: %w", len(keys), err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
