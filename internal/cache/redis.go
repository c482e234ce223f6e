// Package cache provides the Redis client and read-through caching helpers
// for the companion server.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mmuni/internal/observability"
)

// WeatherTTL bounds how long a proxied weather report is reused.
const WeatherTTL = 10 * time.Minute

var client *redis.Client

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrorRate.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrorRate.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// NewClient builds a client for addr, which is either host:port or a
// redis:// URL, with the metrics hook attached. It does not connect.
func NewClient(addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	rdb := redis.NewClient(opts)
	rdb.AddHook(metricsHook{})
	return rdb, nil
}

// InitRedis initializes the shared client. When Redis is unreachable the
// client stays nil and callers run without a cache.
func InitRedis(addr string) {
	rdb, err := NewClient(addr)
	if err != nil {
		observability.Logger.Warn("redis disabled", slog.String("error", err.Error()))
		client = nil
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		observability.Logger.Warn("redis unreachable, continuing without cache", slog.String("error", err.Error()))
		_ = rdb.Close()
		client = nil
		return
	}
	observability.Logger.Info("redis connected")
	client = rdb
}

// GetClient returns the shared client, or nil.
func GetClient() *redis.Client {
	return client
}

// WeatherKey buckets a coordinate to two decimals so nearby requests share
// one entry.
func WeatherKey(lat, lng float64) string {
	return fmt.Sprintf("weather:%.2f:%.2f", round2(lat), round2(lng))
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// Aside returns the JSON value stored under key, or calls load and stores
// its result for ttl. A nil client or a Redis failure falls through to
// load. hit reports whether the value came from Redis.
func Aside[T any](ctx context.Context, rdb *redis.Client, key string, ttl time.Duration, load func(context.Context) (T, error)) (value T, hit bool, err error) {
	if rdb != nil {
		raw, gerr := rdb.Get(ctx, key).Bytes()
		switch {
		case gerr == nil:
			if uerr := json.Unmarshal(raw, &value); uerr == nil {
				return value, true, nil
			}
			observability.Logger.WarnContext(ctx, "discarding unreadable cache entry", slog.String("key", key))
		case !errors.Is(gerr, redis.Nil):
			observability.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", gerr.Error()))
		}
	}

	value, err = load(ctx)
	if err != nil {
		return value, false, err
	}

	if rdb != nil {
		raw, merr := json.Marshal(value)
		if merr == nil {
			if serr := rdb.Set(ctx, key, raw, ttl).Err(); serr != nil {
				observability.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", serr.Error()))
			}
		}
	}
	return value, false, nil
}
