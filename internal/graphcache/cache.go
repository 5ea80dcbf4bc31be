// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/noesis-chat/client-core/internal/model"
)

// Default cache tunables.
const (
	// DefaultTTL is the lifetime of an entry unless overridden per Set.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries bounds the entry count before LRU eviction.
	DefaultMaxEntries = 50
)

// Config holds the cache tunables. All fields are hot-swappable via
// Configure.
type Config struct {
	// DefaultTTL is applied to entries stored without a per-call TTL.
	DefaultTTL time.Duration

	// MaxEntries is the eviction threshold. Zero means the default.
	MaxEntries int

	// EnableStatistics toggles hit/miss accounting.
	EnableStatistics bool

	// AutoCleanup sweeps expired entries opportunistically on reads
	// instead of on a background timer.
	AutoCleanup bool
}

// DefaultConfig returns the standard cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:       DefaultTTL,
		MaxEntries:       DefaultMaxEntries,
		EnableStatistics: true,
		AutoCleanup:      true,
	}
}

func (c Config) sanitize() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	return c
}

// Params identifies a cached request. Today the graph is fetched with
// empty params; the key derivation handles future parameters without a
// format break.
type Params map[string]string

// Key returns the deterministic cache key for the params: a SHA-256 of
// the canonical JSON encoding (JSON object keys marshal sorted).
func (p Params) Key() string {
	data, err := json.Marshal(p)
	if err != nil {
		// A map[string]string cannot fail to marshal; keep a stable
		// fallback anyway.
		data = []byte("{}")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Stats is the derived view of cache health, recomputed per call.
type Stats struct {
	Hits        int
	Misses      int
	EntryCount  int
	TotalSize   int64 // approximate bytes of cached graph data
	HitRate     float64
	OldestEntry time.Time
	NewestEntry time.Time
}

// entry is one cached snapshot with its access metadata.
type entry struct {
	data           *model.GraphSnapshot
	createdAt      time.Time
	ttl            time.Duration
	accessCount    int
	lastAccessedAt time.Time
	size           int64
}

// Cache is the TTL+LRU snapshot cache. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	hits    int
	misses  int
	now     func() time.Time
}

// New creates a cache with the given configuration.
func New(cfg Config) *Cache {
	return &Cache{
		cfg:     cfg.sanitize(),
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// NewWithClock creates a cache with an injected time source, so TTL
// behavior is testable without real sleeps.
func NewWithClock(cfg Config, now func() time.Time) *Cache {
	c := New(cfg)
	if now != nil {
		c.now = now
	}
	return c
}

// Configure swaps the cache tunables. Existing entries keep the TTL
// they were stored with; MaxEntries is enforced on the next Set.
func (c *Cache) Configure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.sanitize()
}

// =============================================================================
// READ PATH
// =============================================================================

// Get returns a deep copy of the cached snapshot for params, or nil and
// false on a miss. An entry past its TTL counts as a miss and is
// removed. Hits touch the entry's access metadata for LRU ordering.
func (c *Cache) Get(params Params) (*model.GraphSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.cfg.AutoCleanup {
		c.sweepLocked(now)
	}

	key := params.Key()
	e, ok := c.entries[key]
	if !ok {
		c.recordMissLocked()
		return nil, false
	}
	if now.Sub(e.createdAt) >= e.ttl {
		delete(c.entries, key)
		c.recordMissLocked()
		return nil, false
	}

	e.accessCount++
	e.lastAccessedAt = now
	c.recordHitLocked()
	return e.data.Clone(), true
}

// =============================================================================
// WRITE PATH
// =============================================================================

// Set stores a deep copy of the snapshot under the params key. An
// optional ttl overrides the configured default for this entry. After
// insertion the least-recently-accessed entries are evicted until the
// entry count is within MaxEntries.
func (c *Cache) Set(snapshot *model.GraphSnapshot, params Params, ttl ...time.Duration) {
	if snapshot == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entryTTL := c.cfg.DefaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		entryTTL = ttl[0]
	}

	now := c.now()
	c.entries[params.Key()] = &entry{
		data:           snapshot.Clone(),
		createdAt:      now,
		ttl:            entryTTL,
		lastAccessedAt: now,
		size:           approxSize(snapshot),
	}

	c.evictLocked()
}

// Invalidate removes the entry for params, if present.
func (c *Cache) Invalidate(params Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, params.Key())
}

// Clear removes all entries. Hit/miss counters are kept; they describe
// the cache's lifetime, not its current contents.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// =============================================================================
// LIVE DELTA APPLICATION
// =============================================================================

// ApplyNodeAdded patches the cached entry for params with a node pushed
// over the live connection, so a later cold read is not stale relative
// to what was already shown. Idempotent by node ID. Returns false when
// no live entry exists.
func (c *Cache) ApplyNodeAdded(params Params, node model.GraphNode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveEntryLocked(params)
	if !ok {
		return false
	}
	if e.data.HasNode(node.ID) {
		return true
	}
	e.data.Nodes = append(e.data.Nodes, node.Clone())
	e.size = approxSize(e.data)
	return true
}

// ApplyEdgeAdded is the edge counterpart of ApplyNodeAdded.
func (c *Cache) ApplyEdgeAdded(params Params, edge model.GraphEdge) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveEntryLocked(params)
	if !ok {
		return false
	}
	if e.data.HasEdge(edge.ID) {
		return true
	}
	e.data.Edges = append(e.data.Edges, edge.Clone())
	e.size = approxSize(e.data)
	return true
}

// liveEntryLocked returns the unexpired entry for params. Patching an
// expired entry would resurrect stale data, so those are removed
// instead.
func (c *Cache) liveEntryLocked(params Params) (*entry, bool) {
	key := params.Key()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) >= e.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

// =============================================================================
// STATS
// =============================================================================

// Stats recomputes the derived statistics from current contents.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		EntryCount: len(c.entries),
	}
	total := c.hits + c.misses
	if total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	for _, e := range c.entries {
		s.TotalSize += e.size
		if s.OldestEntry.IsZero() || e.createdAt.Before(s.OldestEntry) {
			s.OldestEntry = e.createdAt
		}
		if e.createdAt.After(s.NewestEntry) {
			s.NewestEntry = e.createdAt
		}
	}
	return s
}

func (c *Cache) recordHitLocked() {
	if c.cfg.EnableStatistics {
		c.hits++
	}
}

func (c *Cache) recordMissLocked() {
	if c.cfg.EnableStatistics {
		c.misses++
	}
}

// =============================================================================
// INTERNALS
// =============================================================================

// sweepLocked drops expired entries. Runs on the read path when
// AutoCleanup is enabled; there is no background timer.
func (c *Cache) sweepLocked(now time.Time) {
	for key, e := range c.entries {
		if now.Sub(e.createdAt) >= e.ttl {
			delete(c.entries, key)
		}
	}
}

// evictLocked removes least-recently-accessed entries until the count
// is within MaxEntries.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.cfg.MaxEntries {
		var oldestKey string
		var oldest time.Time
		for key, e := range c.entries {
			if oldestKey == "" || e.lastAccessedAt.Before(oldest) {
				oldestKey = key
				oldest = e.lastAccessedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// approxSize estimates the in-memory footprint of a snapshot from its
// string content. Good enough for the stats display; not an allocator
// measurement.
func approxSize(g *model.GraphSnapshot) int64 {
	var size int64
	for _, n := range g.Nodes {
		size += int64(len(n.ID) + len(n.Label) + len(n.Kind))
		for k, v := range n.Properties {
			size += int64(len(k) + len(v))
		}
	}
	for _, e := range g.Edges {
		size += int64(len(e.ID) + len(e.Source) + len(e.Target) + len(e.Kind))
		for k, v := range e.Properties {
			size += int64(len(k) + len(v))
		}
	}
	return size
}
