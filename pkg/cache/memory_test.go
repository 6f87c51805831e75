package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type quote struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "q:BTC", quote{Symbol: "BTC", Price: "65000.5"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got quote
	if err := c.Get(ctx, "q:BTC", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != "65000.5" {
		t.Fatalf("unexpected value %+v", got)
	}

	var missing quote
	if err := c.Get(ctx, "q:ETH", &missing); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	var s string
	if err := c.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry, got %q err=%v", s, err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", "1", time.Minute)
	time.Sleep(2 * time.Millisecond)
	_ = c.Set(ctx, "b", "2", time.Minute)
	time.Sleep(2 * time.Millisecond)

	var s string
	_ = c.Get(ctx, "a", &s) // a is now fresher than b
	time.Sleep(2 * time.Millisecond)
	_ = c.Set(ctx, "c", "3", time.Minute)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if err := c.Get(ctx, "b", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted")
	}
	if err := c.Get(ctx, "a", &s); err != nil || s != "1" {
		t.Fatalf("expected a kept, got %q %v", s, err)
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	ok, _ := c.TryLock(ctx, "cooldown:BTC", 20*time.Millisecond)
	if !ok {
		t.Fatalf("first lock should succeed")
	}
	ok, _ = c.TryLock(ctx, "cooldown:BTC", 20*time.Millisecond)
	if ok {
		t.Fatalf("second lock should fail while held")
	}
	time.Sleep(40 * time.Millisecond)
	ok, _ = c.TryLock(ctx, "cooldown:BTC", 20*time.Millisecond)
	if !ok {
		t.Fatalf("lock should be free after ttl")
	}
}

func TestMGetTyped(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "q:BTC", quote{Symbol: "BTC"}, time.Minute)
	_ = c.Set(ctx, "q:BAD", "not json", time.Minute)

	got, err := MGetTyped[quote](ctx, c, "q:BTC", "q:BAD", "q:NONE")
	if err != nil {
		t.Fatalf("mget: %v", err)
	}
	if len(got) != 1 || got["q:BTC"].Symbol != "BTC" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestLayeredCacheFillsMemoryFromRemote(t *testing.T) {
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	_ = remote.Set(ctx, "q:GC=F", quote{Symbol: "GC=F", Price: "2400"}, time.Minute)

	var got quote
	if err := lc.Get(ctx, "q:GC=F", &got); err != nil || got.Price != "2400" {
		t.Fatalf("layered get: %+v %v", got, err)
	}

	// remote deletes are not visible until the memory copy lapses
	_ = remote.Delete(ctx, "q:GC=F")
	if err := lc.Get(ctx, "q:GC=F", &got); err != nil {
		t.Fatalf("expected memory hit, got %v", err)
	}

	_ = lc.Delete(ctx, "q:GC=F")
	if err := lc.Get(ctx, "q:GC=F", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}
