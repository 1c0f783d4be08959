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

// Package conn selects a PDS server from an ordered list of candidates
// and maintains a session to it.
package conn

import (
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the port PDS listens on. It is not configurable.
const DefaultPort = 8160

// A Candidate is a normalized server entry.
type Candidate struct {
	Server string // The entry as configured.
	Host   string // Bare host name or IP address.
	Port   int
	TLS    bool // False only if Server was given with an http:// scheme.
}

// ParseCandidate normalizes a server entry of the form scheme://host or
// a bare host. Anything after the host, including a port, is dropped.
func ParseCandidate(server string) Candidate {
	host, useTLS := server, true
	switch {
	case strings.HasPrefix(server, "http://"):
		host, useTLS = strings.TrimPrefix(server, "http://"), false
	case strings.HasPrefix(server, "https://"):
		host = strings.TrimPrefix(server, "https://")
	}
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	return Candidate{
		Server: server,
		Host:   host,
		Port:   DefaultPort,
		TLS:    useTLS,
	}
}

// Addr returns the host:port to dial.
func (c Candidate) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Scheme returns http or https.
func (c Candidate) Scheme() string {
	if c.TLS {
		return "https"
	}
	return "http"
}
