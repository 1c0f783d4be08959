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
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// IdleTimeout bounds how long a session keeps an unused connection open.
const IdleTimeout = 90 * time.Second

// Session is an established connection to exactly one PDS server. The
// first request made through the Session reuses the connection that
// was opened while selecting the server; later connections are dialed
// to the same address.
type Session struct {
	Candidate
	CAFile string // The CA bundle used to verify the server, if any.

	client    *http.Client
	pinned    *pinned
	transport *http.Transport
}

func newSession(
	sel *Selector, c Candidate, caFile string, cfg *tls.Config, established net.Conn,
) *Session {
	p := &pinned{conn: established}
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		if conn := p.take(); conn != nil {
			return conn, nil
		}
		conn, _, err := sel.open(ctx, c, cfg)
		return conn, err
	}

	tr := &http.Transport{
		IdleConnTimeout:     IdleTimeout,
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
	}
	if c.TLS {
		// The returned connection has already completed its handshake.
		tr.DialTLSContext = dial
	} else {
		tr.DialContext = dial
	}

	return &Session{
		Candidate: c,
		CAFile:    caFile,
		client:    &http.Client{Transport: tr},
		pinned:    p,
		transport: tr,
	}
}

// Address returns the host the session is connected to.
func (s *Session) Address() string {
	return s.Host
}

// Close releases any idle connections held by the session. The
// session remains usable and will dial again if needed.
func (s *Session) Close() {
	if conn := s.pinned.take(); conn != nil {
		_ = conn.Close()
	}
	s.transport.CloseIdleConnections()
}

// Do sends the request over the session.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	return s.client.Do(req)
}

// URL returns an absolute URL for the path on the session's server.
func (s *Session) URL(path string, query url.Values) *url.URL {
	return &url.URL{
		Scheme:   s.Scheme(),
		Host:     net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:     path,
		RawQuery: query.Encode(),
	}
}

// pinned hands out a previously-established connection exactly once.
type pinned struct {
	mu   sync.Mutex
	conn net.Conn
}

func (p *pinned) take() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := p.conn
	p.conn = nil
	return ret
}
