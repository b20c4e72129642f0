package auth

import (
	"crypto/sha256"
	"sync"
	"time"
)

// AuthCache is a TTL-based in-memory cache of verified API keys.
// Uses sync.Map for lock-free reads on the hot path. Keys are stored as
// SHA-256 digests, never in plain text.
type AuthCache struct {
	store sync.Map      // map[[32]byte]*cacheEntry
	ttl   time.Duration // Default: 30s
}

type cacheEntry struct {
	caller    *Caller
	expiresAt time.Time
}

// NewAuthCache creates a cache with the given TTL.
func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl}
}

// Get returns the cached caller for apiKey if it was verified within the TTL.
// Expired entries are dropped so the next request verifies again.
func (c *AuthCache) Get(apiKey string) (*Caller, bool) {
	key := sha256.Sum256([]byte(apiKey))
	val, ok := c.store.Load(key)
	if !ok {
		return nil, false
	}

	entry := val.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return entry.caller, true
	}

	c.store.CompareAndDelete(key, entry)
	return nil, false
}

// Set stores a verified caller with the configured TTL.
func (c *AuthCache) Set(apiKey string, caller *Caller) {
	c.store.Store(sha256.Sum256([]byte(apiKey)), &cacheEntry{
		caller:    caller,
		expiresAt: time.Now().Add(c.ttl),
	})
}
