package auth

import (
	"sync"
	"testing"
	"time"
)

func TestCache_FreshHit(t *testing.T) {
	cache := NewAuthCache(1 * time.Minute)
	caller := &Caller{KeyPrefix: "csk_abcd"}

	cache.Set("csk_abcdef123", caller)

	got, ok := cache.Get("csk_abcdef123")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.KeyPrefix != "csk_abcd" {
		t.Errorf("expected csk_abcd, got %s", got.KeyPrefix)
	}
}

func TestCache_Miss(t *testing.T) {
	cache := NewAuthCache(1 * time.Minute)

	got, ok := cache.Get("csk_nonexistent")
	if ok {
		t.Error("expected cache miss")
	}
	if got != nil {
		t.Error("expected nil caller on miss")
	}
}

func TestCache_Expired_IsMissAndEvicted(t *testing.T) {
	cache := NewAuthCache(1 * time.Millisecond) // Very short TTL
	cache.Set("csk_abcdef123", &Caller{KeyPrefix: "csk_abcd"})
	time.Sleep(5 * time.Millisecond) // Wait for expiration

	if _, ok := cache.Get("csk_abcdef123"); ok {
		t.Fatal("expected expired entry to miss")
	}

	count := 0
	cache.store.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != 0 {
		t.Errorf("expected expired entry to be evicted, %d left", count)
	}
}

func TestCache_SetAfterExpiry_ResetsFreshness(t *testing.T) {
	cache := NewAuthCache(20 * time.Millisecond)
	cache.Set("csk_abcdef123", &Caller{KeyPrefix: "old"})
	time.Sleep(30 * time.Millisecond)

	if _, ok := cache.Get("csk_abcdef123"); ok {
		t.Fatal("expected miss after expiry")
	}

	cache.Set("csk_abcdef123", &Caller{KeyPrefix: "new"})
	got, ok := cache.Get("csk_abcdef123")
	if !ok {
		t.Fatal("expected hit after re-set")
	}
	if got.KeyPrefix != "new" {
		t.Errorf("expected updated caller, got %s", got.KeyPrefix)
	}
}

func TestCache_DoesNotStorePlainKeys(t *testing.T) {
	cache := NewAuthCache(1 * time.Minute)
	cache.Set("csk_secret_value", &Caller{})

	cache.store.Range(func(k, _ any) bool {
		if _, isString := k.(string); isString {
			t.Error("cache key stored as plain string")
		}
		return true
	})
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewAuthCache(1 * time.Minute)
	caller := &Caller{KeyPrefix: "csk_conc"}

	var wg sync.WaitGroup
	// Hammer the cache from 100 goroutines simultaneously
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Set("csk_key", caller)
			got, ok := cache.Get("csk_key")
			if !ok {
				t.Error("expected hit during concurrent access")
				return
			}
			if got.KeyPrefix != "csk_conc" {
				t.Error("unexpected caller during concurrent access")
			}
		}()
	}
	wg.Wait()
}

func BenchmarkCache_Get_FreshHit(b *testing.B) {
	cache := NewAuthCache(5 * time.Minute)
	cache.Set("csk_bench_key", &Caller{KeyPrefix: "csk_benc"})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, ok := cache.Get("csk_bench_key"); !ok {
				b.Fatal("expected hit")
			}
		}
	})
}
