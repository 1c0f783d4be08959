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

package pdstest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Record is a single key/value pair as served by PDS.
type Record struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Stub is a minimal PDS server. It serves the hiera-data endpoint and
// requires a bearer token signed by TokenSigningKey.
type Stub struct {
	listener net.Listener
	srv      *http.Server

	mu struct {
		sync.Mutex
		data   map[string][]Record // Keyed by level.
		levels []string            // Levels requested, in order.
		raw    map[string]string   // Verbatim response bodies, keyed by level.
		status int                 // If non-zero, returned for every request.
	}
}

// NewStub starts a stub server on a loopback port. If tlsConfig is nil,
// the server speaks plain HTTP.
func NewStub(tlsConfig *tls.Config) (*Stub, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if tlsConfig != nil {
		l = tls.NewListener(l, tlsConfig)
	}

	s := &Stub{listener: l}
	s.mu.data = make(map[string][]Record)
	s.mu.raw = make(map[string]string)
	s.srv = &http.Server{Handler: s}
	go s.srv.Serve(l)
	return s, nil
}

// Addr returns the address the stub is listening on.
func (s *Stub) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the server.
func (s *Stub) Close() {
	_ = s.srv.Close()
}

// Levels returns the levels that have been requested so far.
func (s *Stub) Levels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.mu.levels...)
}

// Set configures the records returned for a level.
func (s *Stub) Set(level string, records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.data[level] = records
}

// SetRaw configures a verbatim response body for a level.
func (s *Stub) SetRaw(level, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.raw[level] = body
}

// SetStatus forces every response to have the given status code. A
// zero value restores normal behavior.
func (s *Stub) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.status = code
}

// ServeHTTP implements http.Handler.
func (s *Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/hiera-data" || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "unexpected content type "+ct)
		return
	}
	if !validToken(r.Header.Get("Authorization")) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	level := r.URL.Query().Get("level")

	s.mu.Lock()
	s.mu.levels = append(s.mu.levels, level)
	status := s.mu.status
	raw, hasRaw := s.mu.raw[level]
	records := s.mu.data[level]
	s.mu.Unlock()

	log.WithField("level", level).Trace("stub request")

	if status != 0 {
		writeError(w, status, "forced status")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if hasRaw {
		_, _ = w.Write([]byte(raw))
		return
	}
	if records == nil {
		records = []Record{}
	}
	_ = json.NewEncoder(w).Encode(records)
}

func validToken(header string) bool {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	_, err := jwt.ParseWithClaims(strings.TrimPrefix(header, prefix), &jwt.RegisteredClaims{},
		func(tkn *jwt.Token) (interface{}, error) {
			return TokenSigningKey.Public(), nil
		})
	return err == nil
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Network maps host names to local listeners so that tests can
// exercise several candidate servers on the fixed PDS port. Hosts
// without a route fail as if DNS resolution had failed.
type Network struct {
	mu struct {
		sync.Mutex
		routes map[string]string
		dials  []string
	}
}

// NewNetwork constructs an empty Network.
func NewNetwork() *Network {
	n := &Network{}
	n.mu.routes = make(map[string]string)
	return n
}

// Route sends connections for host to addr.
func (n *Network) Route(host, addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mu.routes[host] = addr
}

// Dials returns the addresses that have been dialed, in order.
func (n *Network) Dials() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.mu.dials...)
}

// Dial has the same signature as net.Dialer.DialContext.
func (n *Network) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	n.mu.Lock()
	n.mu.dials = append(n.mu.dials, addr)
	target, ok := n.mu.routes[host]
	n.mu.Unlock()

	if !ok {
		return nil, &net.OpError{
			Op:  "dial",
			Net: network,
			Err: &net.DNSError{Err: "no such host", Name: host, IsNotFound: true},
		}
	}
	var d net.Dialer
	return d.DialContext(ctx, network, target)
}

// Hangup accepts TCP connections and closes them immediately, the way
// a load balancer with no healthy backends might.
type Hangup struct {
	listener net.Listener
	done     chan struct{}
}

// NewHangup starts a Hangup listener on a loopback port.
func NewHangup() (*Hangup, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	h := &Hangup{listener: l, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return h, nil
}

// Addr returns the address the listener is bound to.
func (h *Hangup) Addr() string {
	return h.listener.Addr().String()
}

// Close stops accepting connections.
func (h *Hangup) Close() {
	_ = h.listener.Close()
	<-h.done
}
