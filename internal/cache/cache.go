// Package cache implements the TTL-bounded, single-flight-guarded
// result cache that sits in front of the probe orchestrator. It owns a
// reference to the orchestrator's probe function — never the other way
// around, avoiding a cyclic dependency between the two — and stores
// rows in Redis as JSON blobs keyed by address, all within a single
// Redis hash so RefreshExpired and AllByCategory can scan every row.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"validator-worker/internal/store"
	"validator-worker/internal/verdict"
)

// hashKey is the Redis hash holding every cached row, field = address.
const hashKey = "verification_results"

// ProbeFunc is the orchestrator's categorize(address) entry point.
type ProbeFunc func(ctx context.Context, address string) verdict.Verdict

// Cache is the address-keyed result cache.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
	probe ProbeFunc
	store store.EmailStore
	group singleflight.Group
}

// New builds a Cache. probe is the orchestrator's categorize function;
// primaryStore is consulted (and written to) only by RefreshExpired.
func New(redisClient *redis.Client, ttl time.Duration, probe ProbeFunc, primaryStore store.EmailStore) *Cache {
	return &Cache{
		redis: redisClient,
		ttl:   ttl,
		probe: probe,
		store: primaryStore,
	}
}

// Fetch returns the cached verdict for address if a fresh row exists,
// otherwise invokes the orchestrator, persists the result, and returns
// it. Concurrent Fetch calls for the same address while a probe is in
// flight share that probe's result — no duplicate network work per
// address.
func (c *Cache) Fetch(ctx context.Context, address string) (verdict.Verdict, error) {
	normalized := normalize(address)

	if row, ok := c.readFresh(ctx, normalized); ok {
		return row.Verdict, nil
	}

	result, err, _ := c.group.Do(normalized, func() (interface{}, error) {
		v := c.probe(ctx, normalized)
		if storeErr := c.Store(ctx, normalized, v); storeErr != nil {
			log.Printf("⚠️  cache: failed to persist verdict for %s: %v", normalized, storeErr)
		}
		return v, nil
	})
	if err != nil {
		return verdict.Verdict{}, err
	}
	return result.(verdict.Verdict), nil
}

// readFresh reads the row for address and reports whether it exists and
// is within TTL. A deserialization error is treated as a cache miss and
// logged — the row is left in place, not deleted.
func (c *Cache) readFresh(ctx context.Context, normalized string) (verdict.CacheRow, bool) {
	raw, err := c.redis.HGet(ctx, hashKey, normalized).Result()
	if err != nil {
		return verdict.CacheRow{}, false
	}

	var row verdict.CacheRow
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		log.Printf("⚠️  cache: corrupt row for %s, treating as miss: %v", normalized, err)
		return verdict.CacheRow{}, false
	}

	if time.Since(row.CachedAt) >= c.ttl {
		return row, false
	}
	return row, true
}

// Store upserts the verdict for address with cachedAt = now.
func (c *Cache) Store(ctx context.Context, address string, v verdict.Verdict) error {
	normalized := normalize(address)
	row := verdict.CacheRow{Address: normalized, Verdict: v, CachedAt: time.Now()}

	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return c.redis.HSet(ctx, hashKey, normalized, data).Err()
}

// RefreshExpired re-probes every row whose cachedAt has aged past TTL,
// ensuring the address is registered in the primary store first.
func (c *Cache) RefreshExpired(ctx context.Context) (int, error) {
	all, err := c.redis.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for address, raw := range all {
		var row verdict.CacheRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			log.Printf("⚠️  cache: corrupt row for %s during refresh, skipping: %v", address, err)
			continue
		}
		if time.Since(row.CachedAt) < c.ttl {
			continue
		}

		if c.store != nil {
			if err := c.store.EnsureRegistered(address); err != nil {
				log.Printf("⚠️  cache: failed to register %s in primary store: %v", address, err)
			}
		}

		v := c.probe(ctx, address)
		if err := c.Store(ctx, address, v); err != nil {
			log.Printf("⚠️  cache: failed to persist refreshed verdict for %s: %v", address, err)
			continue
		}
		if c.store != nil {
			if err := c.store.MarkValidated(address, time.Now()); err != nil {
				log.Printf("⚠️  cache: failed to mark %s validated: %v", address, err)
			}
		}
		refreshed++
	}

	return refreshed, nil
}

// AllByCategory returns every cached verdict whose category matches
// (case-insensitive).
func (c *Cache) AllByCategory(ctx context.Context, category string) ([]verdict.Verdict, error) {
	all, err := c.redis.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(category)
	var matches []verdict.Verdict
	for _, raw := range all {
		var row verdict.CacheRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			continue
		}
		if strings.ToLower(row.Verdict.Category) == want {
			matches = append(matches, row.Verdict)
		}
	}
	return matches, nil
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
