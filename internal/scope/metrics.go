// Copyright 2022 Cockroach Labs Inc.
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

package scope

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pds_session_cache_hits_total",
		Help: "the number of lookups that reused a cached PDS session",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pds_session_cache_misses_total",
		Help: "the number of lookups that had to establish a PDS session",
	})
	connectWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pds_session_connect_waiters",
		Help: "the number of lookups waiting for another lookup to establish a PDS session",
	})
	scopeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pds_scope_count",
		Help: "the number of scopes with cached state",
	})
)
