package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "relay:cache:"
	ttlConfigKey = "relay:config:cache_ttl_days"
	scanBatch    = 100
)

// ErrUnavailable signals that the backing store could not be reached. The
// pipeline maps it to a cache miss; it is never user-visible.
var ErrUnavailable = errors.New("cache unavailable")

// Store is the gateway to the response cache. Implementations must be safe
// for concurrent use and must fail softly: an unreachable backend is a
// miss, never a request failure.
type Store interface {
	// Get returns the cached value for a fingerprint, or found=false.
	Get(ctx context.Context, fingerprint string) (value []byte, found bool, err error)
	// Set stores a value under a fingerprint with the currently configured TTL.
	Set(ctx context.Context, fingerprint string, value []byte) error
	// TTLDays reports the effective entry lifetime; 0 means never expire.
	TTLDays(ctx context.Context) int
	// SetTTLDays updates the lifetime and re-applies it to existing entries.
	SetTTLDays(ctx context.Context, days int) error
	// EntryCount reports how many entries are currently cached.
	EntryCount(ctx context.Context) (int64, error)
	// Available reports whether a backend is connected.
	Available() bool
}

// RedisStore implements Store on a Redis connection. A nil client is
// legal and renders every operation a soft no-op, so the relay can run
// cacheless when Redis is down at startup.
type RedisStore struct {
	rdb            *redis.Client
	defaultTTLDays int
	logger         *slog.Logger
}

func NewRedisStore(rdb *redis.Client, defaultTTLDays int, logger *slog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, defaultTTLDays: defaultTTLDays, logger: logger}
}

func (s *RedisStore) Available() bool { return s.rdb != nil }

// Bootstrap writes the default TTL config key if none exists, so operators
// see the effective value in Redis from the first request on.
func (s *RedisStore) Bootstrap(ctx context.Context) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	ok, err := s.rdb.SetNX(ctx, ttlConfigKey, strconv.Itoa(s.defaultTTLDays), 0).Result()
	if err != nil {
		return fmt.Errorf("bootstrap ttl config: %w", err)
	}
	if ok {
		s.logger.Info("cache TTL config initialized", "days", s.defaultTTLDays)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	if s.rdb == nil {
		return nil, false, ErrUnavailable
	}
	val, err := s.rdb.Get(ctx, keyPrefix+fingerprint).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, fingerprint string, value []byte) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	ttl := time.Duration(s.TTLDays(ctx)) * 24 * time.Hour
	if err := s.rdb.Set(ctx, keyPrefix+fingerprint, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// TTLDays reads the runtime TTL config from Redis, falling back to the
// configured default when the key is absent, malformed, or unreachable.
func (s *RedisStore) TTLDays(ctx context.Context) int {
	if s.rdb == nil {
		return s.defaultTTLDays
	}
	val, err := s.rdb.Get(ctx, ttlConfigKey).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("failed to read TTL config", "error", err)
		}
		return s.defaultTTLDays
	}
	days, err := strconv.Atoi(val)
	if err != nil || days < 0 {
		return s.defaultTTLDays
	}
	return days
}

// SetTTLDays persists a new TTL and refreshes the expiry of every existing
// cache entry so the change takes effect retroactively.
func (s *RedisStore) SetTTLDays(ctx context.Context, days int) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	if err := s.rdb.Set(ctx, ttlConfigKey, strconv.Itoa(days), 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	refreshed, err := s.refreshEntryTTLs(ctx, days)
	if err != nil {
		s.logger.Warn("failed to refresh cache TTLs", "error", err)
		return nil
	}
	s.logger.Info("cache TTL updated", "days", days, "entries_refreshed", refreshed)
	return nil
}

func (s *RedisStore) refreshEntryTTLs(ctx context.Context, days int) (int, error) {
	ttl := time.Duration(days) * 24 * time.Hour
	refreshed := 0

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if days == 0 {
			s.rdb.Persist(ctx, key)
		} else {
			s.rdb.Expire(ctx, key, ttl)
		}
		refreshed++
	}
	if err := iter.Err(); err != nil {
		return refreshed, err
	}
	return refreshed, nil
}

func (s *RedisStore) EntryCount(ctx context.Context) (int64, error) {
	if s.rdb == nil {
		return 0, ErrUnavailable
	}
	var count int64
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}
