package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis aggregates event counts in Redis hashes:
//
//	<prefix>:total                   cumulative count per kind, never expires
//	<prefix>:minute:<YYYYMMDDhhmm>   count per kind for that UTC minute
//	<prefix>:conn:<id>               per connection counts, if enabled
//
// Bucket and connection keys expire after the configured TTL.
type Redis struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	bucket     string
	trackConns bool
}

// RedisOption configures a Redis recorder, see NewRedis.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix. Surrounding colons are trimmed.
func WithPrefix(prefix string) RedisOption {
	return func(s *Redis) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithTTL sets the expiry of time-series and per connection keys. Zero
// disables expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(s *Redis) { s.ttl = d }
}

// WithBucket selects the time-series granularity: "minute" (default) or
// "none".
func WithBucket(bucket string) RedisOption {
	return func(s *Redis) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithTrackConns enables per connection hashes.
func WithTrackConns(track bool) RedisOption {
	return func(s *Redis) { s.trackConns = track }
}

// NewRedis returns a recorder writing through rdb.
func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{
		rdb:    rdb,
		prefix: "vthreads:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record increments the counters for ev in a single pipeline.
func (s *Redis) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	field := ev.Kind.String()

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	if key, ok := s.bucketKey(ev.At); ok {
		pipe.HIncrBy(ctx, key, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	if key, ok := s.connKey(ev); ok {
		pipe.HIncrBy(ctx, key, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals reads back the cumulative counts.
func (s *Redis) Totals(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.totalKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats: field %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func (s *Redis) totalKey() string {
	return s.prefix + ":total"
}

func (s *Redis) bucketKey(at time.Time) (string, bool) {
	if s.bucket != "minute" {
		return "", false
	}
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")), true
}

func (s *Redis) connKey(ev Event) (string, bool) {
	if !s.trackConns || ev.Conn == 0 {
		return "", false
	}
	return s.prefix + ":conn:" + strconv.FormatUint(ev.Conn, 10), true
}
