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

import "time"

// Config is BL.Pool's configuration record (SPEC_FULL.md §6).
type Config struct {
	// MaxWorkers bounds concurrent in-flight BL.Worker executions.
	MaxWorkers int `yaml:"max_workers"`

	// BatchSize is not read by Pool: the dispatcher pulls one task at a
	// time, and batch_progress counts completions against every admission
	// since New, with no per-batch epochs.
	BatchSize int `yaml:"batch_size"`

	// MaxRetries bounds BL.Worker's intra-task backoff attempts and, tracked
	// separately, BL.Pool's coarse re-enqueue-at-Low-priority cap.
	MaxRetries int `yaml:"max_retries"`

	// BackoffBase is the exponential-backoff initial interval.
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// DefaultConfig returns the design defaults named in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:  4,
		BatchSize:   50,
		MaxRetries:  3,
		BackoffBase: 100 * time.Millisecond,
	}
}
