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

// Package rowmodel implements BL.RowModel: a virtualized directory view
// backing a scrolling UI over a single filesystem directory, with a bounded
// metadata LRU, range-based prefetch, and batch-on-demand loading
// (SPEC_FULL.md §4.7). Grounded on
// original_source/ui/widget/filesystem/lazy_model.py.
package rowmodel

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/golang/groupcache/lru"

	"github.com/kraklabs/docstream/internal/errs"
)

// RowMeta is the per-entry metadata a batch load derives (SPEC_FULL.md §3).
type RowMeta struct {
	Size      int64
	KindLabel string
	Modified  time.Time
	IsDir     bool
}

// RowEntry is one row: a name, plus its cached metadata once loaded.
type RowEntry struct {
	Name       string
	CachedMeta *RowMeta
}

// Stats mirrors DC.Cache's counter shape for the metadata cache, per §4.7
// ("Statistics (hits, misses, size, hit_rate) are exposed").
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// HitRate is hits / max(hits+misses, 1).
func (s Stats) HitRate() float64 {
	denom := s.Hits + s.Misses
	if denom < 1 {
		denom = 1
	}
	return float64(s.Hits) / float64(denom)
}

// Model is BL.RowModel.
type Model struct {
	cfg    Config
	logger *slog.Logger
	icons  *iconCache

	mu            sync.Mutex
	root          string
	entries       []string
	metaCache     *lru.Cache
	loadedBatches map[int]bool
	stats         Stats

	statFunc func(path string) RowMeta

	onDataChanged func(firstRow, lastRow int)
}

// New constructs an empty Model. logger may be nil.
func New(cfg Config, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Model{
		cfg:           cfg,
		logger:        logger,
		icons:         newIconCache(),
		metaCache:     lru.New(cfg.CacheSize),
		loadedBatches: make(map[int]bool),
		statFunc:      statPath,
	}
	return m
}

// SetOnDataChanged registers the callback fired with the inclusive row
// range [first,last] whenever a background batch load completes.
func (m *Model) SetOnDataChanged(cb func(first, last int)) {
	m.mu.Lock()
	m.onDataChanged = cb
	m.mu.Unlock()
}

// SetStatFunc overrides the per-entry stat derivation; tests use this to
// count invocations or simulate slow filesystems without touching disk.
func (m *Model) SetStatFunc(fn func(path string) RowMeta) {
	m.mu.Lock()
	m.statFunc = fn
	m.mu.Unlock()
}

func statPath(path string) RowMeta {
	info, err := os.Stat(path)
	if err != nil {
		return RowMeta{KindLabel: "unknown"}
	}
	label := "file"
	if info.IsDir() {
		label = "folder"
	} else if ext := filepath.Ext(path); ext != "" {
		label = ext[1:]
	}
	return RowMeta{Size: info.Size(), KindLabel: label, Modified: info.ModTime(), IsDir: info.IsDir()}
}

// SetRoot is set_root(path): resets the model, enumerates directory names
// only (no stat), sorts lexicographically, and clears the metadata cache,
// its stats and loaded_batches. The extension-to-icon cache is kept.
func (m *Model) SetRoot(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return errs.Wrap(errs.SeverityError, errs.CodeFileOpenFailed, path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	m.mu.Lock()
	m.root = path
	m.entries = names
	m.metaCache = lru.New(m.cfg.CacheSize)
	m.loadedBatches = make(map[int]bool)
	m.stats = Stats{}
	m.mu.Unlock()
	return nil
}

// Entries returns a snapshot of every row, with CachedMeta populated for
// whichever rows have already been loaded.
func (m *Model) Entries() []RowEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RowEntry, len(m.entries))
	for i, name := range m.entries {
		re := RowEntry{Name: name}
		if v, ok := m.metaCache.Get(lru.Key(name)); ok {
			re.CachedMeta = v.(*RowMeta)
		}
		out[i] = re
	}
	return out
}

// RowCount is row_count().
func (m *Model) RowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Data is data(row, col): column 0 is the name (always available
// immediately); other columns require metadata, which is faulted in via a
// background batch load if missing. The synchronous return for an unloaded
// row is the literal placeholder string "Loading…".
func (m *Model) Data(row, col int) string {
	m.mu.Lock()
	if row < 0 || row >= len(m.entries) {
		m.mu.Unlock()
		return ""
	}
	name := m.entries[row]
	if col == 0 {
		m.mu.Unlock()
		return name
	}
	meta, ok := m.getCachedLocked(name)
	batchIdx := row / m.cfg.BatchSize
	loaded := m.loadedBatches[batchIdx]
	m.mu.Unlock()

	if !ok {
		if !loaded {
			go m.ensureBatch(batchIdx)
		}
		return "Loading…"
	}
	return m.renderColumn(name, meta, col)
}

func (m *Model) renderColumn(name string, meta *RowMeta, col int) string {
	switch col {
	case 1:
		return meta.KindLabel
	case 2:
		if meta.IsDir {
			return ""
		}
		return sizeLabel(meta.Size)
	case 3:
		return meta.Modified.Format(time.RFC3339)
	case 4:
		return m.icons.tokenFor(name, meta.IsDir)
	default:
		return ""
	}
}

func sizeLabel(n int64) string {
	const unit = 1024
	if n < unit {
		return itoa(n) + " B"
	}
	div, exp := int64(unit), 0
	for n2 := n / unit; n2 >= unit; n2 /= unit {
		div *= unit
		exp++
	}
	suffix := "KMGTPE"[exp : exp+1]
	return ftoa(float64(n)/float64(div)) + " " + suffix + "iB"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func ftoa(f float64) string {
	whole := int64(f)
	frac := int64((f - float64(whole)) * 10)
	if frac < 0 {
		frac = -frac
	}
	return itoa(whole) + "." + itoa(frac)
}

// getCachedLocked looks up name's metadata, touching cache stats. Callers
// must hold m.mu.
func (m *Model) getCachedLocked(name string) (*RowMeta, bool) {
	v, ok := m.metaCache.Get(lru.Key(name))
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	m.stats.Hits++
	return v.(*RowMeta), true
}

// ensureBatch loads metadata for every entry in batchIdx's window, unless
// already loaded. Safe to call concurrently for the same batchIdx: only
// the first caller performs I/O (SPEC_FULL.md §4.7, P7 idempotence).
func (m *Model) ensureBatch(batchIdx int) {
	m.mu.Lock()
	if m.loadedBatches[batchIdx] {
		m.mu.Unlock()
		return
	}
	m.loadedBatches[batchIdx] = true
	start := batchIdx * m.cfg.BatchSize
	end := start + m.cfg.BatchSize
	if end > len(m.entries) {
		end = len(m.entries)
	}
	if start >= end {
		m.mu.Unlock()
		return
	}
	names := append([]string(nil), m.entries[start:end]...)
	root := m.root
	statFunc := m.statFunc
	m.mu.Unlock()

	for _, name := range names {
		meta := statFunc(filepath.Join(root, name))
		m.mu.Lock()
		m.metaCache.Add(lru.Key(name), &meta)
		m.mu.Unlock()
	}

	m.mu.Lock()
	cb := m.onDataChanged
	m.mu.Unlock()
	if cb != nil {
		cb(start, end-1)
	}
}

// Prefetch is prefetch(first, last): ensures every batch covering
// [first-fetch_distance, last+fetch_distance] is loaded. Blocking and
// idempotent: a batch already in loaded_batches triggers no further I/O.
func (m *Model) Prefetch(first, last int) {
	m.mu.Lock()
	total := len(m.entries)
	fd := m.cfg.FetchDistance
	m.mu.Unlock()

	lo := first - fd
	if lo < 0 {
		lo = 0
	}
	hi := last + fd
	if hi >= total {
		hi = total - 1
	}
	if hi < lo {
		return
	}

	firstBatch := lo / m.cfg.BatchSize
	lastBatch := hi / m.cfg.BatchSize
	for b := firstBatch; b <= lastBatch; b++ {
		m.ensureBatch(b)
	}
}

// Stats returns a snapshot of the metadata cache's counters.
func (m *Model) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Size = m.metaCache.Len()
	return s
}

// SortByName reorders entries lexicographically (cheap, name-only).
func (m *Model) SortByName() {
	m.mu.Lock()
	defer m.mu.Unlock()
	sort.Strings(m.entries)
}

// SortByMetadata is Sort(column) for a metadata-derived column. Above
// cfg.MetadataSortThreshold entries it refuses to block the caller on a
// full-directory stat sweep, leaving name order unchanged and returning a
// Warning-severity LoadError instead (§9 Open Question resolution);
// otherwise it loads any missing metadata synchronously and reorders.
func (m *Model) SortByMetadata(less func(a, b *RowMeta) bool) error {
	m.mu.Lock()
	total := len(m.entries)
	root := m.root
	m.mu.Unlock()

	if total > m.cfg.MetadataSortThreshold {
		return errs.New(errs.SeverityWarning, errs.CodeSortThresholdExceed, root,
			"directory exceeds metadata_sort_threshold; name order preserved")
	}

	batches := (total + m.cfg.BatchSize - 1) / m.cfg.BatchSize
	for b := 0; b < batches; b++ {
		m.ensureBatch(b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sort.SliceStable(m.entries, func(i, j int) bool {
		mi, _ := m.getCachedLocked(m.entries[i])
		mj, _ := m.getCachedLocked(m.entries[j])
		if mi == nil || mj == nil {
			return false
		}
		return less(mi, mj)
	})
	return nil
}
