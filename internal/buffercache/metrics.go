// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package buffercache

import "github.com/prometheus/client_golang/prometheus"

// metrics is the small, scoped-down set of counters the buffer cache exposes.
// The counters are registered only with a Registerer passed through
// WithRegisterer; by default they are not registered anywhere, never with
// the global default registry, so tests can construct many caches without
// panicking on duplicate registration.
type metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	flushes   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diskfs",
			Subsystem: "buffercache",
			Name:      "lookup_hits_total",
			Help:      "Number of cache_lookup calls satisfied by an already-valid slot.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diskfs",
			Subsystem: "buffercache",
			Name:      "lookup_misses_total",
			Help:      "Number of cache_lookup calls that required a BDA read.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diskfs",
			Subsystem: "buffercache",
			Name:      "evictions_total",
			Help:      "Number of slots reclaimed by the clock eviction policy.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diskfs",
			Subsystem: "buffercache",
			Name:      "dirty_writebacks_total",
			Help:      "Number of dirty slots written back to the BDA, by eviction or cache_flush.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.evictions, m.flushes)
	}
	return m
}
