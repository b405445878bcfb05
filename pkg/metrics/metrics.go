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

// Package metrics wraps the prometheus/client_golang types the cache,
// service and pool packages update inline. This module starts no HTTP
// listener of its own (no wire protocol, SPEC_FULL.md §6); registering the
// Collector with a prometheus.Registerer is the embedding application's
// job, the same division of labor the teacher's --metrics-addr flag drew
// around promhttp.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector bundles every gauge/counter the cache, service and pool
// packages touch. It is not itself a prometheus.Collector; MustRegisterAll
// registers each of its metrics individually.
type Collector struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheBytes     prometheus.Gauge
	CacheEntries   prometheus.Gauge

	ActiveOperations prometheus.Gauge
	OperationsTotal  *prometheus.CounterVec // label: outcome

	PoolQueueDepth   prometheus.Gauge
	PoolInFlight     prometheus.Gauge
	PoolRetries      prometheus.Counter
}

// New constructs a Collector with the given namespace (e.g. "docstream").
// Callers register the returned value with their own prometheus.Registerer.
func New(namespace string) *Collector {
	return &Collector{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
		}),
		CacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "current_bytes",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "current_entries",
		}),
		ActiveOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "active_operations",
		}),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "service", Name: "operations_total",
		}, []string{"outcome"}),
		PoolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "queue_depth",
		}),
		PoolInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "in_flight_workers",
		}),
		PoolRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "retries_total",
		}),
	}
}

// MustRegisterAll registers every metric on r, panicking on duplicate
// registration (mirrors prometheus.MustRegister's own convention).
func (c *Collector) MustRegisterAll(r prometheus.Registerer) {
	r.MustRegister(
		c.CacheHits, c.CacheMisses, c.CacheEvictions, c.CacheBytes, c.CacheEntries,
		c.ActiveOperations, c.OperationsTotal,
		c.PoolQueueDepth, c.PoolInFlight, c.PoolRetries,
	)
}
