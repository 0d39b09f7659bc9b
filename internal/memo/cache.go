// Package memo is the translation memoization cache: a content-addressed
// store from (normalized text, speaker, dialogue type) to a previously
// computed translation.
//
// Entries expire after a TTL. When an insert finds the cache full, expired
// entries are dropped first and then the least-used fraction of what
// remains, so frequently repeated dialogue (NPC greetings, battle barks)
// survives one-off lines. Maintenance failures never reach the caller; the
// cache falls back to deleting a small arbitrary batch instead.
//
// A [Cache] is safe for concurrent use.
package memo

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/lorelens/internal/observe"
)

const (
	defaultTTL           = 600 * time.Second
	defaultCapacity      = 75
	defaultEvictFraction = 0.25

	// fallbackBatch is how many arbitrary entries are dropped when the
	// frequency-based cleanup fails.
	fallbackBatch = 10
)

// Eviction reasons reported to metrics.
const (
	reasonExpired   = "expired"
	reasonFrequency = "frequency"
	reasonFallback  = "fallback"
)

// Stats is a point-in-time snapshot of cache usage.
//
// TotalHits, Misses and Evictions are lifetime counters since creation or
// the last [Cache.Clear]; hits on entries that were later evicted or
// overwritten stay counted. LiveHits and AvgHitsPerEntry only cover the
// entries currently stored, so AvgHitsPerEntry == LiveHits / Size.
type Stats struct {
	Size            int     `json:"size"`
	Capacity        int     `json:"capacity"`
	TotalHits       int64   `json:"total_hits"`
	LiveHits        int64   `json:"live_hits"`
	Misses          int64   `json:"misses"`
	Evictions       int64   `json:"evictions"`
	AvgHitsPerEntry float64 `json:"avg_hits_per_entry"`
}

type entry struct {
	key       string
	value     string
	createdAt time.Time
	hits      int64
}

// Option configures a [Cache].
type Option func(*Cache)

// WithTTL sets how long an entry stays valid. Non-positive values are
// ignored. Default: 600s.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithCapacity sets the maximum number of entries. Values below 1 are
// ignored. Default: 75.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n >= 1 {
			c.capacity = n
		}
	}
}

// WithEvictFraction sets the share of remaining entries removed by a
// frequency eviction, in (0, 1]. Default: 0.25.
func WithEvictFraction(f float64) Option {
	return func(c *Cache) {
		if f > 0 && f <= 1 {
			c.evictFraction = f
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithMetrics reports lookups, evictions and maintenance failures to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// Cache memoizes translations. The zero value is not usable; call [New].
type Cache struct {
	ttl           time.Duration
	capacity      int
	evictFraction float64
	now           func() time.Time
	metrics       *observe.Metrics

	// rank orders eviction candidates, least valuable first. Replaced in
	// tests to exercise the fallback path.
	rank func([]*entry)

	mu        sync.Mutex
	entries   map[string]*entry
	hits      int64
	misses    int64
	evictions int64
}

// New creates an empty [Cache].
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:           defaultTTL,
		capacity:      defaultCapacity,
		evictFraction: defaultEvictFraction,
		now:           time.Now,
		rank:          byUsage,
	}
	for _, o := range opts {
		o(c)
	}
	c.entries = make(map[string]*entry, c.capacity)
	return c
}

// Key derives the content hash for a translation. The text is NFKC
// normalised and its whitespace collapsed, so OCR passes that differ only
// in spacing or full-width forms share an entry. speaker and typ may be
// empty.
func Key(text, speaker, typ string) string {
	normalized := strings.Join(strings.Fields(norm.NFKC.String(text)), " ")
	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(speaker))
	h.Write([]byte{0})
	h.Write([]byte(typ))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached translation, if present and not expired. An
// expired entry is removed.
func (c *Cache) Get(text, speaker, typ string) (string, bool) {
	key := Key(text, speaker, typ)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.expired(e) {
		delete(c.entries, key)
		c.evictions++
		c.metrics.RecordCacheEviction(context.Background(), reasonExpired, 1)
		ok = false
	}
	if !ok {
		c.misses++
		c.metrics.RecordCacheLookup(context.Background(), false)
		return "", false
	}
	e.hits++
	c.hits++
	c.metrics.RecordCacheLookup(context.Background(), true)
	return e.value, true
}

// Put stores translation for the given text, speaker and type, replacing
// any previous value. Inserting into a full cache triggers eviction first.
func (c *Cache) Put(text, translation, speaker, typ string) {
	key := Key(text, speaker, typ)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		if len(c.entries) >= c.capacity {
			c.maintain()
		}
		c.metrics.RecordCacheInsert(context.Background())
	}
	c.entries[key] = &entry{key: key, value: translation, createdAt: c.now()}
}

// Stats returns current usage counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      len(c.entries),
		Capacity:  c.capacity,
		TotalHits: c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	for _, e := range c.entries {
		s.LiveHits += e.hits
	}
	if s.Size > 0 {
		s.AvgHitsPerEntry = float64(s.LiveHits) / float64(s.Size)
	}
	return s
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.RecordCacheCleared(context.Background(), len(c.entries))
	c.entries = make(map[string]*entry, c.capacity)
	c.hits, c.misses, c.evictions = 0, 0, 0
}

func (c *Cache) expired(e *entry) bool {
	return c.now().Sub(e.createdAt) >= c.ttl
}

// maintain frees room for one insert. Must be called with c.mu held.
func (c *Cache) maintain() {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("memo: cache maintenance failed, evicting fallback batch",
				"err", fmt.Sprint(r),
				"size", len(c.entries),
			)
			c.metrics.RecordCacheMaintenanceFailure(context.Background())
			c.fallback()
		}
	}()

	expired := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			expired++
		}
	}
	c.evictions += int64(expired)
	c.metrics.RecordCacheEviction(context.Background(), reasonExpired, expired)

	if len(c.entries) < c.capacity {
		return
	}

	candidates := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		candidates = append(candidates, e)
	}
	c.rank(candidates)

	n := int(math.Ceil(float64(len(candidates)) * c.evictFraction))
	n = max(n, len(candidates)-c.capacity+1)
	for _, e := range candidates[:n] {
		delete(c.entries, e.key)
	}
	c.evictions += int64(n)
	c.metrics.RecordCacheEviction(context.Background(), reasonFrequency, n)
	slog.Debug("memo: evicted least used entries", "evicted", n, "expired", expired, "size", len(c.entries))
}

// fallback deletes an arbitrary batch, large enough to make room for one
// insert. Must be called with c.mu held.
func (c *Cache) fallback() {
	n := max(fallbackBatch, len(c.entries)-c.capacity+1)
	removed := 0
	for k := range c.entries {
		if removed >= n {
			break
		}
		delete(c.entries, k)
		removed++
	}
	c.evictions += int64(removed)
	c.metrics.RecordCacheEviction(context.Background(), reasonFallback, removed)
}

// byUsage sorts entries by hit count, oldest first among equal counts.
func byUsage(es []*entry) {
	slices.SortFunc(es, func(a, b *entry) int {
		if c := cmp.Compare(a.hits, b.hits); c != 0 {
			return c
		}
		return a.createdAt.Compare(b.createdAt)
	})
}
