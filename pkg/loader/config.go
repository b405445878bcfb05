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

package loader

import "time"

// Config is SL.Loader's single configuration record (SPEC_FULL.md §6).
// All fields are optional; DefaultConfig supplies the design defaults.
type Config struct {
	// ChunkSize is the default byte window for loaders whose natural unit
	// is bytes. CSV/PDF loaders override this with rows/pages.
	ChunkSize int `yaml:"chunk_size"`

	// ProgressInterval is the minimum elapsed time between successive
	// progress callback invocations.
	ProgressInterval time.Duration `yaml:"progress_interval"`

	// HashingEnabled toggles the streamed SHA-256 accumulator.
	HashingEnabled bool `yaml:"hashing_enabled"`

	// ProgressEnabled toggles progress callback delivery entirely.
	ProgressEnabled bool `yaml:"progress_enabled"`

	// CSVRowsPerChunk is the CSV loader's chunk unit (rows, not bytes).
	CSVRowsPerChunk int `yaml:"csv_rows_per_chunk"`

	// EncodingFallbacks is the ordered list of encodings the text loader
	// tries after the primary UTF-8 decode fails.
	EncodingFallbacks []string `yaml:"encoding_fallbacks"`

	// StructuredSizeCeiling is the size in bytes below which JSON/XML
	// loaders emit the whole document as a single chunk.
	StructuredSizeCeiling int64 `yaml:"structured_size_ceiling"`
}

// DefaultConfig returns the design defaults named in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		ChunkSize:             8 * 1024,
		ProgressInterval:      100 * time.Millisecond,
		HashingEnabled:        true,
		ProgressEnabled:       true,
		CSVRowsPerChunk:       500,
		EncodingFallbacks:     []string{"iso-8859-1", "windows-1252"},
		StructuredSizeCeiling: 1 << 20,
	}
}
