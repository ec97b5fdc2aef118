package resilience

import (
	"container/list"
	"regexp"
	"strings"
	"sync"
	"time"
)

// CacheEntry is a QueryCache entry snapshot.
type CacheEntry struct {
	Key         string
	Value       interface{}
	Created     time.Time
	Accessed    time.Time
	Expires     time.Time
	SizeBytes   int
	AccessCount int
}

func (e *CacheEntry) expired(now time.Time) bool { return now.After(e.Expires) }

// SetOptions configures one Set call.
type SetOptions struct {
	TTL       time.Duration
	SizeBytes int
}

// QueryCache is a strict-LRU, TTL-bounded cache bounded by entry count and,
// if configured, total byte size. There is no third-party LRU/TTL cache in
// the dependency pack sized for an embeddable byte-budgeted cache (the only
// candidate, groupcache, is a distributed peer cache with a different
// shape), so this is hand-rolled on container/list the way the standard
// library's own documentation models an LRU.
type QueryCache struct {
	mu              sync.Mutex
	items           map[string]*list.Element
	order           *list.List // front = most recently used
	maxSize         int
	maxMemoryBytes  int64
	currentBytes    int64
	defaultTTL      time.Duration
	refreshOnAccess bool
}

type QueryCacheConfig struct {
	MaxSize         int
	MaxMemoryBytes  int64
	DefaultTTL      time.Duration
	RefreshOnAccess bool
}

func NewQueryCache(cfg QueryCacheConfig) *QueryCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	return &QueryCache{
		items:           make(map[string]*list.Element),
		order:           list.New(),
		maxSize:         cfg.MaxSize,
		maxMemoryBytes:  cfg.MaxMemoryBytes,
		defaultTTL:      cfg.DefaultTTL,
		refreshOnAccess: cfg.RefreshOnAccess,
	}
}

// Set inserts key=value, evicting LRU entries until capacity holds.
func (c *QueryCache) Set(key string, value interface{}, opts SetOptions) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*CacheEntry)
		c.currentBytes -= int64(e.SizeBytes)
		e.Value = value
		e.Created = now
		e.Accessed = now
		e.Expires = now.Add(ttl)
		e.SizeBytes = opts.SizeBytes
		c.currentBytes += int64(opts.SizeBytes)
		c.order.MoveToFront(el)
		c.evictLocked()
		return
	}

	entry := &CacheEntry{Key: key, Value: value, Created: now, Accessed: now, Expires: now.Add(ttl), SizeBytes: opts.SizeBytes}
	el := c.order.PushFront(entry)
	c.items[key] = el
	c.currentBytes += int64(opts.SizeBytes)
	c.evictLocked()
}

// evictLocked must be called with mu held.
func (c *QueryCache) evictLocked() {
	for len(c.items) > c.maxSize || (c.maxMemoryBytes > 0 && c.currentBytes > c.maxMemoryBytes) {
		back := c.order.Back()
		if back == nil {
			return
		}
		e := back.Value.(*CacheEntry)
		c.order.Remove(back)
		delete(c.items, e.Key)
		c.currentBytes -= int64(e.SizeBytes)
	}
}

// Get returns the cached value for key, updating its access order (and
// refreshing its TTL if RefreshOnAccess is set). A missing or expired entry
// reports ok=false.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*CacheEntry)
	if e.expired(now) {
		c.order.Remove(el)
		delete(c.items, e.Key)
		c.currentBytes -= int64(e.SizeBytes)
		return nil, false
	}

	e.Accessed = now
	e.AccessCount++
	if c.refreshOnAccess {
		e.Expires = now.Add(c.defaultTTL)
	}
	c.order.MoveToFront(el)
	return e.Value, true
}

// GetOrSet resolves a single-flight result-wins-store: concurrent callers
// for the same key that miss all invoke fetch, but whichever result is
// stored first wins and is what every caller receives.
func (c *QueryCache) GetOrSet(key string, fetch func() (interface{}, error), opts SetOptions) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := fetch()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*CacheEntry)
		if !e.expired(time.Now()) {
			c.mu.Unlock()
			return e.Value, nil
		}
	}
	c.mu.Unlock()

	c.Set(key, v, opts)
	return v, nil
}

// InvalidateByPrefix removes every key starting with prefix.
func (c *QueryCache) InvalidateByPrefix(prefix string) int {
	return c.invalidateWhere(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// InvalidateByPattern removes every key matching the regexp pattern.
func (c *QueryCache) InvalidateByPattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}
	return c.invalidateWhere(re.MatchString), nil
}

func (c *QueryCache) invalidateWhere(match func(string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, el := range c.items {
		if match(key) {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		e := el.Value.(*CacheEntry)
		c.order.Remove(el)
		delete(c.items, e.Key)
		c.currentBytes -= int64(e.SizeBytes)
	}
	return len(toRemove)
}

// Snapshot returns every non-expired entry, most recently used first.
func (c *QueryCache) Snapshot() []CacheEntry {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CacheEntry, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*CacheEntry)
		if e.expired(now) {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// NamespacedCache is a prefix-scoped view over a shared QueryCache.
type NamespacedCache struct {
	cache  *QueryCache
	prefix string
}

// Namespace returns a prefix-scoped view so unrelated components can share
// one QueryCache without key collisions.
func (c *QueryCache) Namespace(ns string) *NamespacedCache {
	return &NamespacedCache{cache: c, prefix: ns + ":"}
}

func (n *NamespacedCache) Set(key string, value interface{}, opts SetOptions) {
	n.cache.Set(n.prefix+key, value, opts)
}

func (n *NamespacedCache) Get(key string) (interface{}, bool) {
	return n.cache.Get(n.prefix + key)
}

func (n *NamespacedCache) GetOrSet(key string, fetch func() (interface{}, error), opts SetOptions) (interface{}, error) {
	return n.cache.GetOrSet(n.prefix+key, fetch, opts)
}

func (n *NamespacedCache) InvalidateAll() int {
	return n.cache.InvalidateByPrefix(n.prefix)
}
