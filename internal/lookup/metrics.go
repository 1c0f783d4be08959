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

package lookup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pds_lookups_total",
		Help: "the number of hiera data lookups, by outcome",
	}, []string{"outcome"})
	lookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pds_lookup_duration_seconds",
		Help:    "the time taken to perform a hiera data lookup",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)
