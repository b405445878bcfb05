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

// Config is DC.Cache's single configuration record (SPEC_FULL.md §6).
type Config struct {
	// MaxBytes bounds current_bytes across all entries.
	MaxBytes int64 `yaml:"max_bytes"`

	// MaxEntries bounds current_count.
	MaxEntries int `yaml:"max_entries"`

	// StatsEnabled toggles counter bookkeeping (hits/misses/evictions/…).
	StatsEnabled bool `yaml:"stats_enabled"`

	// WarmingEnabled allows Warm to proactively load sources.
	WarmingEnabled bool `yaml:"warming_enabled"`

	// Persist enables best-effort stats persistence to PersistPath.
	Persist     bool   `yaml:"persist"`
	PersistPath string `yaml:"persist_path"`

	// WatchEnabled turns on the fsnotify-backed proactive invalidation
	// enrichment described in SPEC_FULL.md §4.3.
	WatchEnabled bool `yaml:"watch_enabled"`
}

// DefaultConfig returns the design defaults named in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		MaxBytes:       100 << 20,
		MaxEntries:     1000,
		StatsEnabled:   true,
		WarmingEnabled: true,
		Persist:        false,
		WatchEnabled:   false,
	}
}
