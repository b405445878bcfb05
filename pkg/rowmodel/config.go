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

// Config is BL.RowModel's configuration record (SPEC_FULL.md §6).
type Config struct {
	// BatchSize is the fixed-size contiguous window of rows loaded together.
	BatchSize int `yaml:"batch_size"`

	// CacheSize bounds the metadata LRU.
	CacheSize int `yaml:"cache_size"`

	// FetchDistance is how many rows around the visible window to prefetch.
	FetchDistance int `yaml:"fetch_distance"`

	// MetadataSortThreshold is the entry-count ceiling above which
	// sort-by-metadata refuses to block synchronously (§9 Open Question).
	MetadataSortThreshold int `yaml:"metadata_sort_threshold"`
}

// DefaultConfig returns the design defaults named in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		BatchSize:             50,
		CacheSize:             500,
		FetchDistance:         5,
		MetadataSortThreshold: 5000,
	}
}
