package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"validator-worker/internal/verdict"
)

func newTestCache(t *testing.T, ttl time.Duration, probe ProbeFunc) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, ttl, probe, nil)
}

func TestStoreThenFetchRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour, func(ctx context.Context, address string) verdict.Verdict {
		t.Fatalf("probe should not be called after a fresh Store")
		return verdict.Verdict{}
	})

	want := verdict.Verdict{Address: "a@b.com", Category: verdict.CategoryValid, SmtpCode: 250}
	if err := c.Store(context.Background(), "a@b.com", want); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := c.Fetch(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Category != want.Category || got.SmtpCode != want.SmtpCode {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFetchMissInvokesProbeAndCaches(t *testing.T) {
	var calls int32
	c := newTestCache(t, time.Hour, func(ctx context.Context, address string) verdict.Verdict {
		atomic.AddInt32(&calls, 1)
		return verdict.Verdict{Address: address, Category: verdict.CategoryUnknown}
	})

	v, err := c.Fetch(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if v.Category != verdict.CategoryUnknown {
		t.Fatalf("category = %q", v.Category)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	// Second fetch should be served from cache, not re-probe.
	if _, err := c.Fetch(context.Background(), "new@example.com"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls after second fetch = %d, want 1", calls)
	}
}

func TestSingleFlightDedupesConcurrentFetches(t *testing.T) {
	var calls int32
	block := make(chan struct{})
	c := newTestCache(t, time.Hour, func(ctx context.Context, address string) verdict.Verdict {
		atomic.AddInt32(&calls, 1)
		<-block
		return verdict.Verdict{Address: address, Category: verdict.CategoryValid}
	})

	const n = 10
	var wg sync.WaitGroup
	results := make([]verdict.Verdict, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), "race@example.com")
			if err != nil {
				t.Errorf("fetch %d: %v", i, err)
				return
			}
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly 1 orchestrator invocation, got %d", calls)
	}
	for i, v := range results {
		if v.Category != verdict.CategoryValid {
			t.Fatalf("result %d = %+v", i, v)
		}
	}
}

func TestAllByCategory(t *testing.T) {
	c := newTestCache(t, time.Hour, nil)
	ctx := context.Background()

	c.Store(ctx, "a@x.com", verdict.Verdict{Category: verdict.CategoryValid})
	c.Store(ctx, "b@x.com", verdict.Verdict{Category: verdict.CategoryInvalid})
	c.Store(ctx, "c@x.com", verdict.Verdict{Category: verdict.CategoryValid})

	matches, err := c.AllByCategory(ctx, "valid")
	if err != nil {
		t.Fatalf("allByCategory: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
}

func TestRefreshExpiredReprobesStaleRows(t *testing.T) {
	var calls int32
	c := newTestCache(t, 10*time.Millisecond, func(ctx context.Context, address string) verdict.Verdict {
		atomic.AddInt32(&calls, 1)
		return verdict.Verdict{Address: address, Category: verdict.CategoryValid}
	})
	ctx := context.Background()

	c.Store(ctx, "stale@example.com", verdict.Verdict{Category: verdict.CategoryInvalid})
	time.Sleep(20 * time.Millisecond)

	refreshed, err := c.RefreshExpired(ctx)
	if err != nil {
		t.Fatalf("refreshExpired: %v", err)
	}
	if refreshed != 1 {
		t.Fatalf("refreshed = %d, want 1", refreshed)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	v, _ := c.Fetch(ctx, "stale@example.com")
	if v.Category != verdict.CategoryValid {
		t.Fatalf("expected refreshed verdict, got %+v", v)
	}
}
