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

// Config is DC.Service's configuration record (SPEC_FULL.md §6).
type Config struct {
	// MaxWorkers bounds the pool of goroutines load_async dispatches onto.
	MaxWorkers int `yaml:"max_workers"`

	// MetadataCacheSize bounds the get_metadata fast-path LRU.
	MetadataCacheSize int `yaml:"metadata_cache_size"`

	// PreviewMaxBytes caps how much of a stream get_preview will accumulate.
	PreviewMaxBytes int64 `yaml:"preview_max_bytes"`

	// PreviewCacheSize bounds the (source, max_lines) preview LRU.
	PreviewCacheSize int `yaml:"preview_cache_size"`
}

// DefaultConfig returns the design defaults named in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:        4,
		MetadataCacheSize: 500,
		PreviewMaxBytes:   1 << 20,
		PreviewCacheSize:  64,
	}
}
