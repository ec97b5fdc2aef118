package authdkim

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/inboxsentinel/core/internal/dnsresolve"
)

const defaultKeyTTL = 300 * time.Second

type keyCacheEntry struct {
	key     *PublicKey
	err     error
	expires time.Time
}

// KeyCache resolves and caches DKIM public keys under (selector, domain),
// the same TTL-bounded shape as internal/dnsresolve.Cache but keyed by the
// selector pair rather than rrtype.
type KeyCache struct {
	Resolver dnsresolve.Backend
	TTL      time.Duration

	mu      sync.RWMutex
	entries map[string]keyCacheEntry
}

func NewKeyCache(resolver dnsresolve.Backend) *KeyCache {
	return &KeyCache{
		Resolver: resolver,
		TTL:      defaultKeyTTL,
		entries:  make(map[string]keyCacheEntry),
	}
}

func (c *KeyCache) keyFor(selector, domain string) string {
	return strings.ToLower(selector) + "._domainkey." + strings.ToLower(domain)
}

// Lookup fetches the key published at <selector>._domainkey.<domain>,
// serving from cache when fresh. A DNS lookup failure is surfaced as-is so
// the caller can map it to temperror.
func (c *KeyCache) Lookup(ctx context.Context, selector, domain string) (*PublicKey, error) {
	name := c.keyFor(selector, domain)

	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.key, entry.err
	}

	txts, err := c.Resolver.ResolveTXT(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(txts) == 0 {
		return nil, nil
	}

	key, parseErr := ParsePublicKey(strings.Join(txts, ""))

	c.mu.Lock()
	c.entries[name] = keyCacheEntry{key: key, err: parseErr, expires: time.Now().Add(c.TTL)}
	c.mu.Unlock()

	return key, parseErr
}
