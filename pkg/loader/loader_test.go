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

package loader_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
)

func writeTemp(t *testing.T, name string, content []byte) docid.SourceId {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return docid.Canonicalize(path)
}

func TestTextLoaderBasicHit(t *testing.T) {
	content := []byte("five kay of text\n")
	source := writeTemp(t, "f.txt", content)

	l := loader.NewTextLoader(loader.DefaultConfig())
	require.True(t, l.Supports(source))

	result := loader.LoadComplete(context.Background(), l, source, nil)
	require.True(t, result.OK)
	require.Equal(t, string(content), result.Text())
	require.Empty(t, result.Errors)
}

// TestChecksumMatchesRawStream verifies P3: SHA-256(concat(raw_chunks)) ==
// metadata.checksum_sha256 whenever the checksum is set.
func TestChecksumMatchesRawStream(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	source := writeTemp(t, "fox.txt", content)

	l := loader.NewTextLoader(loader.DefaultConfig())
	result := loader.LoadComplete(context.Background(), l, source, nil)
	require.True(t, result.OK)

	want := sha256.Sum256(content)
	require.Equal(t, hex.EncodeToString(want[:]), result.Metadata.ChecksumSHA256)
}

func TestTextLoaderMissingFile(t *testing.T) {
	source := docid.Canonicalize(filepath.Join(t.TempDir(), "nope.txt"))
	l := loader.NewTextLoader(loader.DefaultConfig())
	result := loader.LoadComplete(context.Background(), l, source, nil)
	require.False(t, result.OK)
	require.Len(t, result.Errors, 1)
}

// TestProgressCadence exercises P6: invocation count bounded by
// ceil(T/interval)+1.
func TestProgressCadence(t *testing.T) {
	content := make([]byte, 64*1024)
	source := writeTemp(t, "big.txt", content)

	cfg := loader.DefaultConfig()
	cfg.ChunkSize = 4096
	l := loader.NewTextLoader(cfg)

	var calls int
	start := time.Now()
	result := loader.LoadComplete(context.Background(), l, source, func(loader.LoadProgress) {
		calls++
	})
	elapsed := time.Since(start)
	require.True(t, result.OK)
	require.GreaterOrEqual(t, calls, 1)
	bound := int(math.Ceil(float64(elapsed)/float64(cfg.ProgressInterval))) + 1
	require.LessOrEqual(t, calls, bound)
}

func TestCSVLoaderChunksRows(t *testing.T) {
	content := []byte("a,b\n1,2\n3,4\n5,6\n")
	source := writeTemp(t, "data.csv", content)

	cfg := loader.DefaultConfig()
	cfg.CSVRowsPerChunk = 1
	l := loader.NewCSVLoader(cfg)
	require.True(t, l.Supports(source))

	result := loader.LoadComplete(context.Background(), l, source, nil)
	require.True(t, result.OK)
	require.GreaterOrEqual(t, len(result.Chunks), 3)
}

// TestCSVLoaderChecksumIncludesHeader covers I6/P3 for the CSV loader: the
// header row is read before any data row, and its bytes must still reach
// the checksum.
func TestCSVLoaderChecksumIncludesHeader(t *testing.T) {
	content := []byte("a,b\n1,2\n3,4\n")
	source := writeTemp(t, "checksum.csv", content)

	l := loader.NewCSVLoader(loader.DefaultConfig())
	result := loader.LoadComplete(context.Background(), l, source, nil)
	require.True(t, result.OK)

	want := sha256.Sum256(content)
	require.Equal(t, hex.EncodeToString(want[:]), result.Metadata.ChecksumSHA256)
}

// TestMarkdownLoaderChecksumMatchesRawBytes covers I6/P3 for the Markdown
// loader on CRLF input: bufio.Scanner's ScanLines strips line terminators
// from the tokens it returns, so the checksum must be fed the underlying
// reader's raw bytes rather than a normalized reconstruction.
func TestMarkdownLoaderChecksumMatchesRawBytes(t *testing.T) {
	content := []byte("# Title\r\nbody line\r\n\r\n# Next\r\nmore\r\n")
	source := writeTemp(t, "crlf.md", content)

	l := loader.NewMarkdownLoader(loader.DefaultConfig())
	result := loader.LoadComplete(context.Background(), l, source, nil)
	require.True(t, result.OK)

	want := sha256.Sum256(content)
	require.Equal(t, hex.EncodeToString(want[:]), result.Metadata.ChecksumSHA256)
}

func TestMarkdownLoaderSplitsOnHeadings(t *testing.T) {
	content := []byte("# Title\nintro text\n\n# Next\nmore text\n")
	source := writeTemp(t, "doc.md", content)

	l := loader.NewMarkdownLoader(loader.DefaultConfig())
	require.True(t, l.Supports(source))

	result := loader.LoadComplete(context.Background(), l, source, nil)
	require.True(t, result.OK)
	require.Contains(t, result.Text(), "Title")
	require.Contains(t, result.Text(), "Next")
	require.Len(t, result.Chunks, 2)
	require.Equal(t, "# Next\nmore text\n", result.Chunks[1])
}

func TestRegistrySelectsBySourceShape(t *testing.T) {
	r := loader.NewDefaultRegistry(loader.DefaultConfig())
	require.IsType(t, &loader.CSVLoader{}, r.GetLoader(docid.SourceId("a.csv")))
	require.IsType(t, &loader.MarkdownLoader{}, r.GetLoader(docid.SourceId("a.md")))
	require.IsType(t, &loader.TextLoader{}, r.GetLoader(docid.SourceId("a.txt")))
}

// TestConfigHashingDisabledSkipsChecksum covers the HashingEnabled knob:
// a caller who opts out must not pay for (or receive) a checksum.
func TestConfigHashingDisabledSkipsChecksum(t *testing.T) {
	content := []byte("no checksum wanted here")
	source := writeTemp(t, "nohash.txt", content)

	cfg := loader.DefaultConfig()
	cfg.HashingEnabled = false
	l := loader.NewTextLoader(cfg)

	result := loader.LoadComplete(context.Background(), l, source, nil)
	require.True(t, result.OK)
	require.Empty(t, result.Metadata.ChecksumSHA256)
}

// TestConfigProgressIntervalHonored covers P6 for a configured, non-default
// progress_interval: callbacks must respect the caller's cadence rather than
// the hardcoded 100ms default.
func TestConfigProgressIntervalHonored(t *testing.T) {
	content := make([]byte, 256*1024)
	source := writeTemp(t, "cadence.txt", content)

	cfg := loader.DefaultConfig()
	cfg.ChunkSize = 4096
	cfg.ProgressInterval = time.Hour
	l := loader.NewTextLoader(cfg)

	calls := 0
	result := loader.LoadComplete(context.Background(), l, source, func(loader.LoadProgress) {
		calls++
	})
	require.True(t, result.OK)
	// With a 1h interval, only the first chunk's callback and the mandatory
	// final callback should fire — every call in between must be suppressed.
	require.Equal(t, 2, calls)
}

func TestStreamProgressMonotonic(t *testing.T) {
	content := make([]byte, 32*1024)
	source := writeTemp(t, "mono.txt", content)
	l := loader.NewTextLoader(loader.DefaultConfig())

	var last int64
	start := time.Now()
	result := loader.LoadComplete(context.Background(), l, source, func(p loader.LoadProgress) {
		require.GreaterOrEqual(t, p.BytesProcessed, last)
		last = p.BytesProcessed
	})
	require.True(t, result.OK)
	require.GreaterOrEqual(t, result.Elapsed, time.Duration(0))
	require.Less(t, time.Since(start), 5*time.Second)
}
