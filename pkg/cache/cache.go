// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache implements DC.Cache: a thread-safe LRU over completed load
// results keyed by canonical SourceId, bounded by both byte size and entry
// count, with staleness detection and pattern-based invalidation
// (SPEC_FULL.md §4.3). Grounded on original_source/core/document_cache.py.
package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/golang/groupcache/lru"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
	"github.com/kraklabs/docstream/pkg/metrics"
)

// Cache is DC.Cache. A single mutex covers the map, the access-order
// structure and current_bytes/stats (SPEC_FULL.md §5); it is a plain
// sync.Mutex, not reentrant, and no method acquires it while already holding
// it. Loader I/O runs outside the lock and is reacquired only to install the
// result.
type Cache struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector

	mu           sync.Mutex
	ll           *lru.Cache // backing access-order structure (groupcache/lru)
	keys         map[docid.SourceId]*entry
	currentBytes int64
	stats        Stats

	watcher *watcher

	subMu sync.Mutex
	subs  []func(docid.SourceId)
}

// Subscribe registers fn to run whenever a cached source is invalidated or
// found stale — via Invalidate, InvalidatePattern, InvalidateStale, lazy
// staleness detection in Get, or the file-watch enrichment (which itself
// drives invalidation through Invalidate). DC.Service uses this to keep its
// preview LRU coherent with DC.Cache (§9).
func (c *Cache) Subscribe(fn func(docid.SourceId)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, fn)
}

// notifyInvalidated runs every subscriber for source. Callers must not hold
// c.mu: subscribers may call back into Cache or other locked components.
func (c *Cache) notifyInvalidated(source docid.SourceId) {
	c.subMu.Lock()
	subs := append([]func(docid.SourceId)(nil), c.subs...)
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(source)
	}
}

// New constructs a Cache. logger and m may be nil (a no-op logger/no
// metrics are used); cfg zero-value callers should use DefaultConfig().
func New(cfg Config, logger *slog.Logger, m *metrics.Collector) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{cfg: cfg, logger: logger, metrics: m, keys: make(map[docid.SourceId]*entry)}
	c.ll = lru.New(0) // unbounded backing store; Cache enforces its own bounds
	c.ll.OnEvicted = func(key lru.Key, value any) {
		e := value.(*entry)
		c.currentBytes -= e.sizeBytes
		c.stats.CurrentBytes = c.currentBytes
		c.stats.CurrentCount = c.ll.Len()
		delete(c.keys, key.(docid.SourceId))
	}
	if cfg.Persist {
		if stats, ok := loadPersisted(cfg.PersistPath); ok {
			c.stats = stats
		}
	}
	if cfg.WatchEnabled {
		c.watcher = newWatcher(c, logger)
	}
	return c
}

// Get returns a hit snapshot, or nil on miss/stale. If loader is non-nil
// and the lookup misses (or hits stale), Get drives the loader
// synchronously, puts the result, and returns it (SPEC_FULL.md §4.3).
func (c *Cache) Get(ctx context.Context, source docid.SourceId, l loader.Loader) (*loader.LoadResult, error) {
	if result, hit := c.lookup(source); hit {
		return result, nil
	}
	if l == nil {
		return nil, nil
	}
	result := loader.LoadComplete(ctx, l, source, nil)
	if result.OK {
		c.Put(source, result)
	}
	return result, nil
}

// lookup performs the hit/miss/stale decision and touch bookkeeping under
// the single lock, without ever performing I/O itself except the
// best-effort mtime stat used for staleness (§4.3: "best-effort and must
// not block put on slow I/O" — the same applies to get's stat check).
func (c *Cache) lookup(source docid.SourceId) (*loader.LoadResult, bool) {
	c.mu.Lock()

	v, ok := c.ll.Get(lru.Key(source))
	if c.cfg.StatsEnabled {
		c.stats.TotalAccesses++
	}
	if !ok {
		if c.cfg.StatsEnabled {
			c.stats.Misses++
		}
		c.mu.Unlock()
		return nil, false
	}
	e := v.(*entry)
	if c.isStale(source, e) {
		c.ll.Remove(lru.Key(source))
		if c.cfg.StatsEnabled {
			c.stats.Misses++
		}
		c.logger.Debug("cache.stale_evict", "source", source)
		c.mu.Unlock()
		c.notifyInvalidated(source)
		return nil, false
	}
	e.accessCount++
	e.lastAccessed = time.Now()
	if c.cfg.StatsEnabled {
		c.stats.Hits++
		c.stats.TotalLoadedBytes += e.sizeBytes
		c.stats.TotalSavedBytes += e.sizeBytes
	}
	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
	c.mu.Unlock()
	return e.toResult(), true
}

// isStale implements I4: source disappeared, or source.mtime advanced
// past the stored source_modified_at. Non-file sources never go stale
// through this check (SPEC_FULL.md §4.3).
func (c *Cache) isStale(source docid.SourceId, e *entry) bool {
	if e.sourceModifiedAt == nil {
		return false
	}
	st := docid.StatPath(source)
	if !st.Exists {
		return true
	}
	return st.ModTime > *e.sourceModifiedAt
}

// Put installs result under source, evicting least-recently-used entries
// until current_bytes and current_count satisfy the bounds (SPEC_FULL.md
// §4.3's eviction algorithm). Returns false (never panics) if the entry
// alone exceeds MaxBytes — a failed put leaves invariants intact (I2).
func (c *Cache) Put(source docid.SourceId, result *loader.LoadResult) bool {
	if result == nil || !result.OK || result.Metadata == nil {
		return false
	}
	size := sizeOf(result)
	if size > c.cfg.MaxBytes {
		c.logger.Warn("cache.put_rejected", "source", source, "size", size, "max_bytes", c.cfg.MaxBytes,
			"code", errs.CodeCacheOversize)
		return false
	}

	e := &entry{
		chunks:       append([]string(nil), result.Chunks...),
		metadata:     result.Metadata,
		sizeBytes:    size,
		accessCount:  0,
		lastAccessed: time.Now(),
	}
	if docid.LooksLikeFilePath(string(source)) {
		st := docid.StatPath(source)
		if st.Exists {
			mt := st.ModTime
			e.sourceModifiedAt = &mt
		}
		if c.watcher != nil {
			watchSourceDir(c.watcher, source)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ll.Get(lru.Key(source)); ok {
		c.ll.Remove(lru.Key(source)) // triggers OnEvicted, which decrements currentBytes
	}

	maxEntries := c.cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	for c.ll.Len() > 0 && (c.currentBytes+size > c.cfg.MaxBytes || c.ll.Len() >= maxEntries) {
		c.ll.RemoveOldest() // triggers OnEvicted, which decrements currentBytes
		if c.cfg.StatsEnabled {
			c.stats.Evictions++
		}
		if c.metrics != nil {
			c.metrics.CacheEvictions.Inc()
		}
	}
	if c.ll.Len() == 0 && size > c.cfg.MaxBytes {
		return false
	}

	c.ll.Add(lru.Key(source), e)
	c.keys[source] = e
	c.currentBytes += size
	c.stats.CurrentBytes = c.currentBytes
	c.stats.CurrentCount = c.ll.Len()
	if c.metrics != nil {
		c.metrics.CacheBytes.Set(float64(c.currentBytes))
		c.metrics.CacheEntries.Set(float64(c.ll.Len()))
		c.metrics.CacheMisses.Inc()
	}
	if c.cfg.Persist {
		savePersisted(c.cfg.PersistPath, c.stats)
	}
	return true
}

// Invalidate drops source's entry, if any.
func (c *Cache) Invalidate(source docid.SourceId) {
	c.mu.Lock()
	c.ll.Remove(lru.Key(source))
	c.mu.Unlock()
	c.notifyInvalidated(source)
}

// InvalidatePattern drops every entry whose SourceId matches the glob
// pattern (path/filepath.Match semantics — no third-party glob library
// appears anywhere in the example pack; see DESIGN.md).
func (c *Cache) InvalidatePattern(pattern string) int {
	c.mu.Lock()
	var toRemove []docid.SourceId
	c.eachLocked(func(source docid.SourceId, _ *entry) {
		if ok, _ := filepath.Match(pattern, string(source)); ok {
			toRemove = append(toRemove, source)
		} else if ok, _ := filepath.Match(pattern, filepath.Base(string(source))); ok {
			toRemove = append(toRemove, source)
		}
	})
	for _, s := range toRemove {
		c.ll.Remove(lru.Key(s))
	}
	c.mu.Unlock()
	for _, s := range toRemove {
		c.notifyInvalidated(s)
	}
	return len(toRemove)
}

// InvalidateStale drops every currently-stale entry.
func (c *Cache) InvalidateStale() int {
	c.mu.Lock()
	var toRemove []docid.SourceId
	c.eachLocked(func(source docid.SourceId, e *entry) {
		if c.isStale(source, e) {
			toRemove = append(toRemove, source)
		}
	})
	for _, s := range toRemove {
		c.ll.Remove(lru.Key(s))
	}
	c.mu.Unlock()
	for _, s := range toRemove {
		c.notifyInvalidated(s)
	}
	return len(toRemove)
}

// Clear empties the cache and zeroes the byte/count counters (R3); hit/miss
// counters are left intact since those are process-lifetime totals.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll = lru.New(0)
	c.ll.OnEvicted = func(key lru.Key, value any) {
		e := value.(*entry)
		c.currentBytes -= e.sizeBytes
		delete(c.keys, key.(docid.SourceId))
	}
	c.keys = make(map[docid.SourceId]*entry)
	c.currentBytes = 0
	c.stats.CurrentBytes = 0
	c.stats.CurrentCount = 0
}

// Warm loads every source through l and puts the result, best-effort. Only
// meaningful when cfg.WarmingEnabled is true.
func (c *Cache) Warm(ctx context.Context, sources []docid.SourceId, l loader.Loader) {
	if !c.cfg.WarmingEnabled || l == nil {
		return
	}
	for _, s := range sources {
		if result := loader.LoadComplete(ctx, l, s, nil); result.OK {
			c.Put(s, result)
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// AccessFrequency returns up to limit SourceIds ordered by descending
// access_count, for cache-warming heuristics.
func (c *Cache) AccessFrequency(limit int) []docid.SourceId {
	c.mu.Lock()
	defer c.mu.Unlock()
	type pair struct {
		source docid.SourceId
		count  int64
	}
	var pairs []pair
	c.eachLocked(func(source docid.SourceId, e *entry) {
		pairs = append(pairs, pair{source, e.accessCount})
	})
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].count > pairs[j].count })
	if limit > 0 && limit < len(pairs) {
		pairs = pairs[:limit]
	}
	out := make([]docid.SourceId, len(pairs))
	for i, p := range pairs {
		out[i] = p.source
	}
	return out
}

// eachLocked walks live entries; callers must already hold c.mu.
// groupcache's lru.Cache exposes no iterator, so Cache keeps a shadow map of
// the live entries themselves (populated in Put, pruned via OnEvicted on
// every Remove/RemoveOldest) to support invalidate_pattern, invalidate_stale
// and access_frequency. This reads c.keys directly rather than calling
// c.ll.Get, which would promote every inspected entry to most-recently-used
// and corrupt the real eviction order for what are meant to be read-only
// scans (I3).
func (c *Cache) eachLocked(fn func(docid.SourceId, *entry)) {
	for k, e := range c.keys {
		fn(k, e)
	}
}

// Close releases the optional filesystem watcher, if one was started.
func (c *Cache) Close() error {
	if c.watcher != nil {
		return c.watcher.close()
	}
	return nil
}
