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

package conn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dialFails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pds_dial_failures_total",
		Help: "the number of times a candidate PDS server could not be reached",
	}, []string{"host"})
	dialSuccesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pds_dial_successes_total",
		Help: "the number of times a session to a PDS server was established",
	}, []string{"host"})
	tlsFails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pds_tls_failures_total",
		Help: "the number of TLS handshakes with a PDS server that failed",
	}, []string{"host"})
)
