package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jmp/vthreads/stats"
	"github.com/redis/go-redis/v9"
)

// OpenRecorder builds the recorder described by c. The returned close
// function releases its resources and is never nil.
func (c Stats) OpenRecorder(ctx context.Context) (stats.Recorder, func() error, error) {
	noop := func() error { return nil }

	switch c.Backend {
	case "", "none":
		return stats.Discard, noop, nil

	case "memory":
		return stats.NewMemory(), noop, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("config: redis stats ping %s: %w", c.RedisAddr, err)
		}

		return stats.NewRedis(
			rdb,
			stats.WithPrefix(c.Prefix),
			stats.WithTTL(c.TTL),
			stats.WithBucket(c.Bucket),
			stats.WithTrackConns(c.TrackConns),
		), rdb.Close, nil

	default:
		return nil, noop, fmt.Errorf("config: unknown stats.backend %q", c.Backend)
	}
}
