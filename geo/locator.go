package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ErrLookupUnavailable is the soft failure of any lookup. It never blocks a login.
var ErrLookupUnavailable = errors.New("geo lookup unavailable")

// Locator resolves an IP address to a Location.
type Locator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, ip string) (Location, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context, ip string) (Location, error) {
	return f(ctx, ip)
}

// CacheConfig tunes CachedLocator.
type CacheConfig struct {
	Prefix        string
	TTL           time.Duration // default 7 days
	Timeout       time.Duration // per upstream call, default 800ms
	RatePerSecond float64       // upstream budget, 0 disables throttling
	Burst         int
}

// CachedLocator puts a Redis cache, a timeout and an outbound throttle in
// front of an upstream Locator.
type CachedLocator struct {
	next    Locator
	redis   redis.UniversalClient
	cfg     CacheConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewCachedLocator wraps next. A nil redis client disables caching.
func NewCachedLocator(next Locator, redisClient redis.UniversalClient, cfg CacheConfig, logger *slog.Logger) *CachedLocator {
	if cfg.Prefix == "" {
		cfg.Prefix = "geo"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 800 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &CachedLocator{
		next:   next,
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

func (c *CachedLocator) key(ip string) string {
	return c.cfg.Prefix + ":" + ip
}

// Locate returns the cached location or asks upstream. Every failure path
// returns an error wrapping ErrLookupUnavailable.
func (c *CachedLocator) Locate(ctx context.Context, ip string) (Location, error) {
	if ip == "" || c.next == nil {
		return Location{}, ErrLookupUnavailable
	}

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, c.key(ip)).Bytes()
		switch {
		case err == nil:
			var loc Location
			if jerr := json.Unmarshal(raw, &loc); jerr == nil {
				return loc, nil
			}
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("geo cache read failed", "error", err)
		}
	}

	if c.limiter != nil && !c.limiter.Allow() {
		return Location{}, fmt.Errorf("%w: upstream budget exhausted", ErrLookupUnavailable)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	loc, err := c.next.Locate(lookupCtx, ip)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}

	if c.redis != nil {
		if data, jerr := json.Marshal(loc); jerr == nil {
			if err := c.redis.Set(ctx, c.key(ip), data, c.cfg.TTL).Err(); err != nil {
				c.logger.Warn("geo cache write failed", "error", err)
			}
		}
	}
	return loc, nil
}
