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
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Stats is DC.Cache's counter snapshot (SPEC_FULL.md §3). The hit, miss,
// eviction, access and byte-total counters are monotonic within a process
// lifetime; Clear resets only CurrentBytes and CurrentCount.
type Stats struct {
	Hits             int64 `yaml:"hits"`
	Misses           int64 `yaml:"misses"`
	Evictions        int64 `yaml:"evictions"`
	TotalAccesses    int64 `yaml:"total_accesses"`
	TotalLoadedBytes int64 `yaml:"total_loaded_bytes"`
	TotalSavedBytes  int64 `yaml:"total_saved_bytes"`
	CurrentBytes     int64 `yaml:"current_bytes"`
	CurrentCount     int   `yaml:"current_count"`
}

// HitRate is hits / max(total_accesses, 1).
func (s Stats) HitRate() float64 {
	denom := s.TotalAccesses
	if denom < 1 {
		denom = 1
	}
	return float64(s.Hits) / float64(denom)
}

// persistRecord is the self-describing key-value record §6 specifies for
// optional stats persistence: {created_at, stats{…}}. No cached content is
// ever written here.
type persistRecord struct {
	CreatedAt time.Time `yaml:"created_at"`
	Stats     Stats     `yaml:"stats"`
}

// savePersisted writes stats to path as YAML. Best-effort: errors are
// swallowed per §6 ("must not fail the process").
func savePersisted(path string, stats Stats) {
	if path == "" {
		return
	}
	rec := persistRecord{CreatedAt: time.Now(), Stats: stats}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

// loadPersisted reads a previously persisted stats record, if any. Missing
// or corrupt files are treated as "no prior stats" rather than an error.
func loadPersisted(path string) (Stats, bool) {
	if path == "" {
		return Stats{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, false
	}
	var rec persistRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Stats{}, false
	}
	return rec.Stats, true
}
