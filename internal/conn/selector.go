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
	"crypto/x509"
	"io"
	"net"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DialFunc has the same signature as net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Selector chooses the first reachable server from a list of
// candidates. The zero value is ready to use.
type Selector struct {
	// Dial opens TCP connections. If nil, a default net.Dialer is used.
	Dial DialFunc
}

// Connect tries each server in order and returns a Session for the
// first one that accepts a connection. A candidate that cannot be
// reached, or that drops the connection during the TLS handshake, is
// skipped. A certificate or TLS protocol failure stops the selection
// immediately.
func (s *Selector) Connect(ctx context.Context, servers []string, caFile string) (*Session, error) {
	if len(servers) == 0 {
		return nil, &Error{cause: errors.New("no servers configured")}
	}

	// Load the CA bundle once, before touching the network.
	cfg, err := tlsConfig(caFile)
	if err != nil {
		return nil, &Error{TLS: true, cause: err}
	}

	attempted := make([]string, 0, len(servers))
	failures := attemptErrors()
	for _, server := range servers {
		c := ParseCandidate(server)
		attempted = append(attempted, server)

		conn, fatal, err := s.open(ctx, c, cfg)
		if err == nil {
			dialSuccesses.WithLabelValues(c.Host).Inc()
			log.WithFields(log.Fields{
				"server": server,
				"addr":   c.Addr(),
				"tls":    c.TLS,
			}).Debug("connected to PDS server")
			return newSession(s, c, caFile, cfg, conn), nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Servers: attempted, cause: ctxErr}
		}

		if fatal {
			tlsFails.WithLabelValues(c.Host).Inc()
			log.WithError(err).WithField("server", server).Debug("TLS failure, abandoning server selection")
			return nil, &Error{Servers: attempted, TLS: true, cause: err}
		}

		dialFails.WithLabelValues(c.Host).Inc()
		log.WithError(err).WithField("server", server).Debug("could not reach PDS server, trying next")
		failures = multierror.Append(failures, err)
	}

	return nil, &Error{Servers: attempted, cause: failures.ErrorOrNil()}
}

// open dials the candidate and, if required, completes a TLS handshake.
// The returned flag is true if the handshake failed for a reason other
// than the transport.
func (s *Selector) open(ctx context.Context, c Candidate, base *tls.Config) (net.Conn, bool, error) {
	dial := s.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	raw, err := dial(ctx, "tcp", c.Addr())
	if err != nil {
		return nil, false, errors.Wrapf(err, "could not dial %s", c.Addr())
	}
	if !c.TLS {
		return raw, false, nil
	}

	cfg := base.Clone()
	cfg.ServerName = c.Host

	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, !transportFailure(err), errors.Wrapf(err, "TLS handshake with %s failed", c.Addr())
	}
	return conn, false, nil
}

// transportFailure reports whether a handshake error came from the
// underlying connection rather than from certificate verification or
// the TLS protocol itself.
func transportFailure(err error) bool {
	var (
		authority x509.UnknownAuthorityError
		invalid   x509.CertificateInvalidError
		hostname  x509.HostnameError
		header    tls.RecordHeaderError
	)
	if errors.As(err, &authority) || errors.As(err, &invalid) ||
		errors.As(err, &hostname) || errors.As(err, &header) {
		return false
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if op := (*net.OpError)(nil); errors.As(err, &op) {
		// crypto/tls reports sent and received alerts as OpErrors.
		return op.Op != "remote error" && op.Op != "local error"
	}
	if nerr := (net.Error)(nil); errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}

// tlsConfig returns the client TLS configuration. If caFile is set,
// only the certificates it contains are trusted; otherwise the system
// roots are used.
func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read CA file %q", caFile)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.Errorf("did not find any certificates in CA file %q", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
