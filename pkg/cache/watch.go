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

package cache

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kraklabs/docstream/pkg/docid"
)

// watcher is the optional proactive-invalidation enrichment named in
// SPEC_FULL.md §4.3: staleness is normally detected lazily on Get via
// mtime comparison, but a caller may opt into fsnotify so a file changed
// while never looked up is still evicted promptly rather than lingering
// until its next access.
type watcher struct {
	fsw    *fsnotify.Watcher
	cache  *Cache
	logger *slog.Logger
	done   chan struct{}

	mu   sync.Mutex
	dirs map[string]struct{}
}

func newWatcher(c *Cache, logger *slog.Logger) *watcher {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("cache.watch_unavailable", "error", err)
		return nil
	}
	w := &watcher{fsw: fsw, cache: c, logger: logger, done: make(chan struct{}), dirs: make(map[string]struct{})}
	go w.run()
	return w
}

// watchDir adds dir (a directory containing a cached source) to the
// fsnotify watch list. Adding the same directory twice is a no-op; directory
// granularity matches fsnotify's lack of recursive-watch support.
func (w *watcher) watchDir(dir string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; ok {
		return
	}
	if err := w.fsw.Add(dir); err == nil {
		w.dirs[dir] = struct{}{}
	}
}

func (w *watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				source := docid.Canonicalize(ev.Name)
				w.cache.Invalidate(source)
				w.logger.Debug("cache.watch_invalidate", "source", source, "op", ev.Op.String())
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("cache.watch_error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *watcher) close() error {
	if w == nil {
		return nil
	}
	close(w.done)
	return w.fsw.Close()
}

// watchSourceDir is a convenience wrapper Put/Get callers can use to enroll
// a source's containing directory once watch mode is enabled.
func watchSourceDir(w *watcher, source docid.SourceId) {
	if w == nil {
		return
	}
	w.watchDir(filepath.Dir(string(source)))
}
