package translation

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheConfig bounds the translation cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"` // Zero keeps entries until evicted

	// UpstreamTimeout bounds one shared provider call. Zero uses 10s.
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
}

const defaultUpstreamTimeout = 10 * time.Second

// DefaultCacheConfig holds a few thousand phrases for an hour.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries:      4096,
		TTL:             time.Hour,
		UpstreamTimeout: defaultUpstreamTimeout,
	}
}

// Validate reports out-of-range values.
func (c CacheConfig) Validate() error {
	var errs []error
	if c.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("translation.cache.max_entries must be at least 1, got %d", c.MaxEntries))
	}
	if c.TTL < 0 {
		errs = append(errs, fmt.Errorf("translation.cache.ttl must not be negative, got %v", c.TTL))
	}
	if c.UpstreamTimeout < 0 {
		errs = append(errs, fmt.Errorf("translation.cache.upstream_timeout must not be negative, got %v", c.UpstreamTimeout))
	}
	return errors.Join(errs...)
}

// CacheStats counts cache outcomes.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Shared  uint64 `json:"shared"` // Misses served by another caller's request
	Entries int    `json:"entries"`
}

type cacheKey struct {
	source, target, text string
}

func (k cacheKey) String() string {
	return k.source + "\x00" + k.target + "\x00" + k.text
}

type cacheEntry struct {
	key        cacheKey
	translated string
	stored     time.Time
}

// Cache is a least-recently-used translation cache. Concurrent misses for
// the same text share one upstream request. It is safe for concurrent use.
type Cache struct {
	next Translator
	cfg  CacheConfig
	now  func() time.Time

	mu    sync.Mutex
	items map[cacheKey]*list.Element
	order *list.List // Front is most recently used

	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	shared atomic.Uint64
}

// NewCache wraps next with a cache.
func NewCache(next Translator, cfg CacheConfig) (*Cache, error) {
	if next == nil {
		return nil, errors.New("translation: nil translator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cache{
		next:  next,
		cfg:   cfg,
		now:   time.Now,
		items: make(map[cacheKey]*list.Element),
		order: list.New(),
	}, nil
}

func newKey(text, source, target string) cacheKey {
	return cacheKey{
		source: primary(source),
		target: strings.ToLower(strings.TrimSpace(target)),
		text:   strings.ToLower(strings.TrimSpace(text)),
	}
}

// Lookup returns a cached translation without calling the provider.
func (c *Cache) Lookup(text, source, target string) (string, bool) {
	if SameLanguage(source, target) {
		return strings.TrimSpace(text), true
	}
	k := newKey(text, source, target)
	if k.text == "" {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[k]
	if !ok {
		return "", false
	}
	e := el.Value.(*cacheEntry)
	if c.cfg.TTL > 0 && c.now().Sub(e.stored) > c.cfg.TTL {
		c.order.Remove(el)
		delete(c.items, k)
		return "", false
	}
	c.order.MoveToFront(el)
	return e.translated, true
}

// Translate implements Translator, serving hits from the cache. A caller
// whose ctx ends stops waiting, but the shared provider call keeps running
// for the other callers on the same text.
func (c *Cache) Translate(ctx context.Context, text, source, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if out, ok := c.Lookup(text, source, target); ok {
		c.hits.Add(1)
		return out, nil
	}
	c.misses.Add(1)

	k := newKey(text, source, target)
	ch := c.group.DoChan(k.String(), func() (any, error) {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.upstreamTimeout())
		defer cancel()

		out, err := c.next.Translate(uctx, text, source, target)
		if err != nil {
			return "", err
		}
		c.store(k, out)
		return out, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) upstreamTimeout() time.Duration {
	if c.cfg.UpstreamTimeout > 0 {
		return c.cfg.UpstreamTimeout
	}
	return defaultUpstreamTimeout
}

func (c *Cache) store(k cacheKey, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[k]; ok {
		e := el.Value.(*cacheEntry)
		e.translated = translated
		e.stored = c.now()
		c.order.MoveToFront(el)
		return
	}

	c.items[k] = c.order.PushFront(&cacheEntry{key: k, translated: translated, stored: c.now()})
	for c.order.Len() > c.cfg.MaxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Shared:  c.shared.Load(),
		Entries: c.Len(),
	}
}
