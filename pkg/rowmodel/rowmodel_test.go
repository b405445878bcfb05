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

package rowmodel

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDir(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%03d.txt", i)), []byte("x"), 0o644))
	}
	return dir
}

func TestSetRootListsNamesSorted(t *testing.T) {
	dir := seedDir(t, 5)
	m := New(DefaultConfig(), nil)
	require.NoError(t, m.SetRoot(dir))
	assert.Equal(t, 5, m.RowCount())
	assert.Equal(t, "f000.txt", m.Data(0, 0))
	assert.Equal(t, "f004.txt", m.Data(4, 0))
}

// TestPrefetchIdempotent covers P7: calling Prefetch twice with the same
// range only stats each entry once.
func TestPrefetchIdempotent(t *testing.T) {
	dir := seedDir(t, 20)
	cfg := DefaultConfig()
	cfg.BatchSize = 5
	cfg.FetchDistance = 0
	m := New(cfg, nil)
	require.NoError(t, m.SetRoot(dir))

	var statCalls atomic.Int32
	m.SetStatFunc(func(path string) RowMeta {
		statCalls.Add(1)
		return RowMeta{Size: 1, KindLabel: "file", Modified: time.Now()}
	})

	m.Prefetch(0, 9)
	first := statCalls.Load()
	assert.Equal(t, int32(10), first, "rows 0-9 span two 5-row batches")

	m.Prefetch(0, 9)
	assert.Equal(t, first, statCalls.Load(), "second identical prefetch must not re-stat")
}

func TestDataTriggersBackgroundBatchLoad(t *testing.T) {
	dir := seedDir(t, 10)
	cfg := DefaultConfig()
	cfg.BatchSize = 5
	m := New(cfg, nil)
	require.NoError(t, m.SetRoot(dir))

	changed := make(chan struct{}, 1)
	m.SetOnDataChanged(func(first, last int) { changed <- struct{}{} })

	val := m.Data(2, 1)
	assert.Equal(t, "Loading…", val)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("batch load never completed")
	}
	assert.Equal(t, "txt", m.Data(2, 1))
}

func TestSortByMetadataThreshold(t *testing.T) {
	dir := seedDir(t, 3)
	cfg := DefaultConfig()
	cfg.MetadataSortThreshold = 2
	m := New(cfg, nil)
	require.NoError(t, m.SetRoot(dir))

	err := m.SortByMetadata(func(a, b *RowMeta) bool { return a.Size < b.Size })
	require.Error(t, err)
	assert.Equal(t, "f000.txt", m.Data(0, 0), "name order must be preserved above threshold")
}

func TestSortByMetadataBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("aaaaaaaaaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))

	m := New(DefaultConfig(), nil)
	require.NoError(t, m.SetRoot(dir))

	err := m.SortByMetadata(func(a, b *RowMeta) bool { return a.Size < b.Size })
	require.NoError(t, err)
	assert.Equal(t, "b.txt", m.Data(0, 0))
	assert.Equal(t, "a.txt", m.Data(1, 0))
}
