package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/timeutil"
)

// quoteIndexKey is a sorted set of quote keys scored by target-date Unix
// seconds, used for range invalidation and stats.
const quoteIndexKey = "urgency:quote-index"

// CachedStore keeps quote snapshots in Redis and delegates configuration
// and events to a primary Store. Quotes expire natively in Redis; config
// rows are read through with a fixed TTL.
type CachedStore struct {
	primary   Store
	rdb       *redis.Client
	configTTL time.Duration
}

// NewCachedStore creates a Redis-fronted store around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, configTTL time.Duration) *CachedStore {
	return &CachedStore{
		primary:   primary,
		rdb:       rdb,
		configTTL: configTTL,
	}
}

func (s *CachedStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return s.primary.Ping(ctx)
}

// --- Quotes (Redis only) ---

func (s *CachedStore) GetQuote(ctx context.Context, key string, now time.Time) (*model.CacheEntry, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", key, err)
	}

	var e model.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", key, err)
	}
	// Redis expiry has second granularity; honour the exact instant.
	if !e.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *CachedStore) PutQuote(ctx context.Context, e *model.CacheEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", e.Key, err)
	}
	ttl := time.Until(e.ExpiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, e.Key, data, ttl)
	pipe.ZAdd(ctx, quoteIndexKey, redis.Z{
		Score:  float64(timeutil.StartOfDay(e.TargetDate).Unix()),
		Member: e.Key,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *CachedStore) DeleteQuotesInRange(ctx context.Context, start, end time.Time) (int64, error) {
	lo := strconv.FormatInt(timeutil.StartOfDay(start).Unix(), 10)
	hi := strconv.FormatInt(timeutil.StartOfDay(end).Unix(), 10)

	keys, err := s.rdb.ZRangeByScore(ctx, quoteIndexKey, &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan quote index: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	// Remove only the members just read; a quote written since the scan
	// keeps its index entry.
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, quoteIndexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return del.Val(), nil
}

func (s *CachedStore) CountQuotesByLevel(ctx context.Context, now time.Time) (map[model.UrgencyLevel]int, error) {
	keys, err := s.rdb.ZRange(ctx, quoteIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	counts := make(map[model.UrgencyLevel]int)
	if len(keys) == 0 {
		return counts, nil
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var gone []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			gone = append(gone, keys[i])
			continue
		}
		var e model.CacheEntry
		if json.Unmarshal([]byte(raw), &e) != nil || !e.ExpiresAt.After(now) {
			continue
		}
		counts[e.UrgencyLevel]++
	}

	// Prune index members whose quote already expired out of Redis.
	if len(gone) > 0 {
		s.rdb.ZRem(ctx, quoteIndexKey, gone...)
	}
	return counts, nil
}

// --- Config (read-through) ---

func (s *CachedStore) GetPricingConfig(ctx context.Context, key string) (*model.PricingConfig, error) {
	var cfg model.PricingConfig
	if s.readCached(ctx, pricingConfigKey(key), &cfg) {
		return &cfg, nil
	}

	loaded, err := s.primary.GetPricingConfig(ctx, key)
	if err != nil {
		return nil, err
	}
	s.writeCached(ctx, pricingConfigKey(key), loaded)
	return loaded, nil
}

func (s *CachedStore) GetDemandConfig(ctx context.Context, profile string) (*model.MarketDemandConfig, error) {
	var cfg model.MarketDemandConfig
	if s.readCached(ctx, demandConfigKey(profile), &cfg) {
		return &cfg, nil
	}

	loaded, err := s.primary.GetDemandConfig(ctx, profile)
	if err != nil {
		return nil, err
	}
	s.writeCached(ctx, demandConfigKey(profile), loaded)
	return loaded, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.EventMultiplier, error) {
	return s.primary.ListEvents(ctx, f)
}

func (s *CachedStore) GetEvent(ctx context.Context, id string) (*model.EventMultiplier, error) {
	return s.primary.GetEvent(ctx, id)
}

func (s *CachedStore) InsertEvent(ctx context.Context, ev *model.EventMultiplier) error {
	return s.primary.InsertEvent(ctx, ev)
}

func (s *CachedStore) DeactivateEvent(ctx context.Context, id string, at time.Time) error {
	return s.primary.DeactivateEvent(ctx, id, at)
}

// --- Cache helpers ---

func (s *CachedStore) readCached(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) writeCached(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.configTTL)
	}
}

func pricingConfigKey(key string) string { return fmt.Sprintf("urgency:config:%s", key) }
func demandConfigKey(profile string) string { return fmt.Sprintf("urgency:demand:%s", profile) }
