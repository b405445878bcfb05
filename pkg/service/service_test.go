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

package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/docstream/pkg/cache"
	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
)

// delayedLoader wraps a real loader.Loader and counts/open-delays Open
// calls, so tests can observe how many times the underlying loader was
// actually invoked (P5's "at most one invocation" guarantee).
type delayedLoader struct {
	inner loader.Loader
	delay time.Duration
	opens atomic.Int32
}

func (d *delayedLoader) Supports(source docid.SourceId) bool           { return d.inner.Supports(source) }
func (d *delayedLoader) KindsSupported() []loader.DocumentKind         { return d.inner.KindsSupported() }
func (d *delayedLoader) Open(ctx context.Context, source docid.SourceId) (*loader.Stream, error) {
	d.opens.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.inner.Open(ctx, source)
}

func newTestRegistry(l loader.Loader) *loader.Registry {
	r := loader.NewRegistry()
	r.Register(l)
	return r
}

func TestServiceLoadSyncBasic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
	source := docid.Canonicalize(path)

	reg := newTestRegistry(loader.NewTextLoader(loader.DefaultConfig()))
	svc := New(DefaultConfig(), reg, cache.New(cache.DefaultConfig(), nil, nil), nil, nil)

	result, err := svc.LoadSync(context.Background(), source)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.OK)
	assert.Equal(t, "hello world", result.Text())
}

// TestServiceInFlightDedup covers P5/scenario 4: N concurrent load_async
// calls for the same source cause exactly one underlying loader invocation.
func TestServiceInFlightDedup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(path, []byte("concurrent payload"), 0o644))
	source := docid.Canonicalize(path)

	dl := &delayedLoader{inner: loader.NewTextLoader(loader.DefaultConfig()), delay: 50 * time.Millisecond}
	reg := newTestRegistry(dl)
	svc := New(DefaultConfig(), reg, cache.New(cache.DefaultConfig(), nil, nil), nil, nil)

	const n = 10
	var wg sync.WaitGroup
	results := make([]*loader.LoadResult, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		svc.LoadAsync(source, nil, func(r *loader.LoadResult) {
			results[i] = r
			wg.Done()
		}, func(e error) {
			wg.Done()
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), dl.opens.Load(), "expected exactly one loader invocation")
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "concurrent payload", r.Text())
		assert.Equal(t, results[0].Metadata.ChecksumSHA256, r.Metadata.ChecksumSHA256)
	}
}

func TestServiceGetMetadataCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.txt")
	require.NoError(t, os.WriteFile(path, []byte("metadata body"), 0o644))
	source := docid.Canonicalize(path)

	dl := &delayedLoader{inner: loader.NewTextLoader(loader.DefaultConfig())}
	reg := newTestRegistry(dl)
	svc := New(DefaultConfig(), reg, cache.New(cache.DefaultConfig(), nil, nil), nil, nil)

	m1, err := svc.GetMetadata(context.Background(), source, false)
	require.NoError(t, err)
	require.NotNil(t, m1)

	m2, err := svc.GetMetadata(context.Background(), source, false)
	require.NoError(t, err)
	assert.Equal(t, m1.ChecksumSHA256, m2.ChecksumSHA256)
	assert.Equal(t, int32(1), dl.opens.Load(), "second get_metadata call should hit the metadata LRU")
}

// TestServiceGetPreviewInvalidatedOnCacheInvalidate covers §9's preview-LRU
// coherence resolution: a cache.Invalidate on the underlying DC.Cache must
// evict the corresponding cached preview, not just the cache's own entry.
func TestServiceGetPreviewInvalidatedOnCacheInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preview.txt")
	require.NoError(t, os.WriteFile(path, []byte("version one\n"), 0o644))
	source := docid.Canonicalize(path)

	c := cache.New(cache.DefaultConfig(), nil, nil)
	reg := newTestRegistry(loader.NewTextLoader(loader.DefaultConfig()))
	svc := New(DefaultConfig(), reg, c, nil, nil)

	p1, err := svc.GetPreview(context.Background(), source, 1)
	require.NoError(t, err)
	assert.Equal(t, "version one\n", p1)

	require.NoError(t, os.WriteFile(path, []byte("version two\n"), 0o644))
	c.Invalidate(source)

	p2, err := svc.GetPreview(context.Background(), source, 1)
	require.NoError(t, err)
	assert.Equal(t, "version two\n", p2, "preview LRU should be invalidated alongside the cache entry")
}

func TestServiceCancelAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.txt")
	body := make([]byte, 64*1024)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	source := docid.Canonicalize(path)

	dl := &delayedLoader{inner: loader.NewTextLoader(loader.DefaultConfig()), delay: 200 * time.Millisecond}
	reg := newTestRegistry(dl)
	svc := New(DefaultConfig(), reg, cache.New(cache.DefaultConfig(), nil, nil), nil, nil)

	done := make(chan struct{})
	svc.LoadAsync(source, nil, func(r *loader.LoadResult) { close(done) }, func(e error) { close(done) })

	time.Sleep(10 * time.Millisecond)
	assert.True(t, svc.IsLoading(source))
	n := svc.CancelAll()
	assert.Equal(t, 1, n)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled operation never delivered a callback")
	}
}
