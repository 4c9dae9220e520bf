package mdp

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ResponseCache is the pluggable cache capability set: fingerprint ->
// reply bytes with TTL expiry. The broker calls Get and Set
// synchronously from its event loop and replies with a hit's payload
// as returned.
type ResponseCache interface {
	Get(fingerprint string) (payload []string, ok bool)
	Set(fingerprint string, payload []string, ttl time.Duration)
}

// fingerprint computes the cache key for a request: the service name
// concatenated with a cryptographic digest of the payload.
func fingerprint(service string, payload []string) string {
	h := sha256.New()
	h.Write([]byte(service))
	for _, p := range payload {
		h.Write([]byte{0}) // frame separator so "ab","c" != "a","bc"
		h.Write([]byte(p))
	}
	return service + ":" + hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	payload  []string
	expireAt time.Time // zero value means "no expiry"
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// lruResponseCache layers absolute-expiry TTL bookkeeping on top of an
// LRU eviction cache, the same shape as destiny-lucas's NonceCache:
// lru.New for bounded memory, a stored timestamp for "is this entry
// still good", and lazy deletion on lookup plus a periodic sweep.
type lruResponseCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *cacheEntry]
	done  chan struct{}
}

// NewResponseCache creates a bounded response cache. maxEntries caps
// memory use; entries additionally expire per their own TTL.
func NewResponseCache(maxEntries int) ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c, _ := lru.New[string, *cacheEntry](maxEntries)
	rc := &lruResponseCache{cache: c, done: make(chan struct{})}
	go rc.sweepLoop()
	return rc
}

func (c *lruResponseCache) Get(fp string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(fp)
	if !ok {
		return nil, false
	}
	if entry.expired(time.Now()) {
		c.cache.Remove(fp)
		return nil, false
	}
	return entry.payload, true
}

func (c *lruResponseCache) Set(fp string, payload []string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{payload: payload}
	if ttl > 0 {
		entry.expireAt = time.Now().Add(ttl)
	}
	c.cache.Add(fp, entry)
}

// Close stops the background sweep goroutine. Safe to call once.
func (c *lruResponseCache) Close() {
	close(c.done)
}

func (c *lruResponseCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *lruResponseCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, fp := range c.cache.Keys() {
		if entry, ok := c.cache.Peek(fp); ok && entry.expired(now) {
			c.cache.Remove(fp)
		}
	}
}
