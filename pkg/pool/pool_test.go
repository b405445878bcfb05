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

package pool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
)

// flakyLoader fails Open for its first failTimes invocations (a retryable
// READ_FAILED) then delegates to inner.
type flakyLoader struct {
	inner     loader.Loader
	failTimes int
	attempts  atomic.Int32
}

func (f *flakyLoader) Supports(s docid.SourceId) bool           { return f.inner.Supports(s) }
func (f *flakyLoader) KindsSupported() []loader.DocumentKind    { return f.inner.KindsSupported() }
func (f *flakyLoader) Open(ctx context.Context, s docid.SourceId) (*loader.Stream, error) {
	n := f.attempts.Add(1)
	if int(n) <= f.failTimes {
		return nil, errs.New(errs.SeverityError, errs.CodeReadFailed, string(s), "synthetic failure")
	}
	return f.inner.Open(ctx, s)
}

// delayedLoader sleeps for delay before delegating to inner's Open, so
// cancellation observed mid-sleep is visible by the time Open returns.
type delayedLoader struct {
	inner loader.Loader
	delay time.Duration
}

func (d *delayedLoader) Supports(s docid.SourceId) bool        { return d.inner.Supports(s) }
func (d *delayedLoader) KindsSupported() []loader.DocumentKind { return d.inner.KindsSupported() }
func (d *delayedLoader) Open(ctx context.Context, s docid.SourceId) (*loader.Stream, error) {
	time.Sleep(d.delay)
	return d.inner.Open(ctx, s)
}

func newSingleLoaderRegistry(l loader.Loader) *loader.Registry {
	r := loader.NewRegistry()
	r.Register(l)
	return r
}

// TestPoolBackoffAndRetry covers scenario 5: a loader failing twice then
// succeeding yields exactly one file_loaded and no file_failed, with
// elapsed time reflecting the exponential backoff schedule.
func TestPoolBackoffAndRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flaky.txt")
	require.NoError(t, os.WriteFile(path, []byte("eventually ok"), 0o644))
	source := docid.Canonicalize(path)

	fl := &flakyLoader{inner: loader.NewTextLoader(loader.DefaultConfig()), failTimes: 2}
	reg := newSingleLoaderRegistry(fl)

	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	cfg.BackoffBase = 10 * time.Millisecond

	var loaded, failed int32
	var mu sync.Mutex
	done := make(chan struct{}, 1)
	handlers := Handlers{
		OnFileLoaded: func(source docid.SourceId, result *loader.LoadResult) {
			mu.Lock()
			loaded++
			mu.Unlock()
			done <- struct{}{}
		},
		OnFileFailed: func(source docid.SourceId, err error) {
			mu.Lock()
			failed++
			mu.Unlock()
			done <- struct{}{}
		},
	}

	p := New(cfg, reg, handlers, nil, nil)
	p.Start()
	start := time.Now()
	p.Add(source, PriorityNormal)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}
	elapsed := time.Since(start)

	assert.Equal(t, int32(1), loaded)
	assert.Equal(t, int32(0), failed)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond+20*time.Millisecond)
}

// TestPoolCancelAll covers scenario 6 (adapted): many sources queued behind
// a deliberately slow loader; cancel_all mid-flight must account for every
// task as loaded, failed, or cancelled with no further progress afterward.
func TestPoolCancelAll(t *testing.T) {
	dir := t.TempDir()
	const n = 20
	sources := make([]docid.SourceId, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("f%d.txt", i))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		sources[i] = docid.Canonicalize(path)
	}

	dl := &delayedLoader{inner: loader.NewTextLoader(loader.DefaultConfig()), delay: 30 * time.Millisecond}
	reg := newSingleLoaderRegistry(dl)

	cfg := DefaultConfig()
	cfg.MaxWorkers = 2

	var accounted atomic.Int32

	handlers := Handlers{
		OnFileLoaded: func(source docid.SourceId, result *loader.LoadResult) {
			accounted.Add(1)
		},
		OnFileFailed: func(source docid.SourceId, err error) {
			accounted.Add(1)
		},
		OnCancelled: func(source docid.SourceId) {
			accounted.Add(1)
		},
	}

	p := New(cfg, reg, handlers, nil, nil)
	p.Start()
	p.AddBatch(sources, PriorityNormal)

	time.Sleep(20 * time.Millisecond)
	p.CancelAll()

	require.Eventually(t, func() bool { return int(accounted.Load()) == n }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, p.QueueDepth(), "queue must be fully drained after cancel_all")
}
