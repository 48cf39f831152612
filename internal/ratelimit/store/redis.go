package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// DefaultKeyPrefix namespaces bucket keys in Redis.
const DefaultKeyPrefix = "edgegw:ratelimit:"

// tokenBucketScript refills and consumes in one round trip.
// KEYS[1] bucket key
// ARGV[1] capacity, ARGV[2] refill rate per second,
// ARGV[3] now in milliseconds, ARGV[4] idle TTL in milliseconds.
// Returns {allowed, tokens} with tokens as a string to keep the fraction.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(data[1])
local last = tonumber(data[2])

if tokens == nil or last == nil then
    tokens = capacity
    last = now
end

if now < last then
    now = last
end

tokens = math.min(capacity, tokens + ((now - last) / 1000) * rate)
if tokens < 0 then
    tokens = 0
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(now))
if ttl > 0 then
    redis.call('PEXPIRE', key, ttl)
end

return {allowed, tostring(tokens)}
`)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps buckets in Redis so every replica shares them.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger
	owned  bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// WithKeyPrefix overrides the key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore wraps an existing client. The caller keeps ownership of
// the client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisStoreWithConfig dials Redis and verifies the connection.
func NewRedisStoreWithConfig(ctx context.Context, cfg RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	if cfg.Prefix != "" {
		opts = append([]RedisOption{WithKeyPrefix(cfg.Prefix)}, opts...)
	}
	s := NewRedisStore(client, opts...)
	s.owned = true
	return s, nil
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, limit Limit, now time.Time) (Result, error) {
	raw, err := tokenBucketScript.Run(ctx, s.client, []string{s.prefix + key},
		limit.Capacity,
		strconv.FormatFloat(limit.RefillRatePerSecond, 'f', -1, 64),
		now.UnixMilli(),
		limit.IdleTTL.Milliseconds(),
	).Slice()
	if err != nil {
		s.logger.Debug("token bucket script failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return Result{}, fmt.Errorf("token bucket script failed: %w", err)
	}

	res, err := parseScriptResult(raw)
	if err != nil {
		return Result{}, err
	}
	if !res.Allowed {
		res.RetryAfter = retryAfter(res.Tokens, limit.RefillRatePerSecond)
	}
	return res, nil
}

func parseScriptResult(raw []interface{}) (Result, error) {
	if len(raw) != 2 {
		return Result{}, fmt.Errorf("unexpected token bucket reply length %d", len(raw))
	}

	allowed, ok := raw[0].(int64)
	if !ok {
		return Result{}, fmt.Errorf("unexpected token bucket reply type %T", raw[0])
	}
	tokensStr, ok := raw[1].(string)
	if !ok {
		return Result{}, fmt.Errorf("unexpected token bucket reply type %T", raw[1])
	}
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		return Result{}, fmt.Errorf("invalid token count %q: %w", tokensStr, err)
	}

	return Result{Allowed: allowed == 1, Tokens: tokens}, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client if the store created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
