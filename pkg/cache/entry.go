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
	"time"

	"github.com/kraklabs/docstream/pkg/loader"
)

// entry is DC's unit of ownership: created on successful load, mutated
// only by touch (access bookkeeping) or replaced wholesale on reload,
// destroyed on eviction or explicit invalidation (SPEC_FULL.md §3).
type entry struct {
	chunks           []string
	metadata         *loader.DocumentMetadata
	sizeBytes        int64
	accessCount      int64
	lastAccessed     time.Time
	sourceModifiedAt *int64 // unix nanos; nil for non-file sources
}

// sizeOf estimates the content+metadata footprint the spec's CacheEntry
// tracks as size_bytes.
func sizeOf(result *loader.LoadResult) int64 {
	var total int64
	for _, c := range result.Chunks {
		total += int64(len(c))
	}
	if result.Metadata != nil {
		total += int64(len(result.Metadata.Source))
		total += int64(len(result.Metadata.ChecksumSHA256))
		total += int64(len(result.Metadata.Title))
		total += 128 // fixed metadata footprint estimate
	}
	return total
}

// toResult renders an immutable LoadResult snapshot for a cache hit, per
// the Ownership rule: consumers never see the entry itself.
func (e *entry) toResult() *loader.LoadResult {
	chunks := make([]string, len(e.chunks))
	copy(chunks, e.chunks)
	metaCopy := *e.metadata
	return &loader.LoadResult{
		OK:       true,
		Chunks:   chunks,
		Metadata: &metaCopy,
		Elapsed:  0,
	}
}
