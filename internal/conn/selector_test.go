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
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/cockroachlabs/pds-client/internal/pdstest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serverCert *pdstest.Certificate

func TestMain(m *testing.M) {
	pdstest.ConfigureLogging()

	var err error
	serverCert, err = pdstest.SelfSigned()
	if err != nil {
		log.Fatal(err)
	}

	os.Exit(m.Run())
}

// fixture starts a TLS stub reachable as "localhost" and a plain-HTTP
// stub reachable as "plain" on a fresh Network.
type fixture struct {
	caFile string
	net    *pdstest.Network
	plain  *pdstest.Stub
	secure *pdstest.Stub
	sel    *Selector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	secure, err := pdstest.NewStub(serverCert.Config)
	require.NoError(t, err)
	t.Cleanup(secure.Close)

	plain, err := pdstest.NewStub(nil)
	require.NoError(t, err)
	t.Cleanup(plain.Close)

	caFile, err := serverCert.WriteCAFile(t.TempDir())
	require.NoError(t, err)

	network := pdstest.NewNetwork()
	network.Route("localhost", secure.Addr())
	network.Route("plain", plain.Addr())

	return &fixture{
		caFile: caFile,
		net:    network,
		plain:  plain,
		secure: secure,
		sel:    &Selector{Dial: network.Dial},
	}
}

func TestFailoverOrder(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	sess, err := f.sel.Connect(context.Background(),
		[]string{"https://s1.example", "s2.example", "https://localhost"}, f.caFile)
	if !a.NoError(err) {
		return
	}
	a.Equal("localhost", sess.Address())
	a.Equal("https://localhost", sess.Server)
	a.True(sess.TLS)
	a.Equal(f.caFile, sess.CAFile)
	a.Equal([]string{"s1.example:8160", "s2.example:8160", "localhost:8160"}, f.net.Dials())
}

func TestFirstSuccessWins(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	sess, err := f.sel.Connect(context.Background(),
		[]string{"http://plain", "https://localhost"}, f.caFile)
	if !a.NoError(err) {
		return
	}
	a.Equal("plain", sess.Address())
	a.False(sess.TLS)
	a.Equal([]string{"plain:8160"}, f.net.Dials())
}

func TestTLSFailureAborts(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	// Without the CA file, the self-signed certificate is rejected.
	_, err := f.sel.Connect(context.Background(),
		[]string{"https://localhost", "http://plain"}, "")

	var connErr *Error
	if a.True(errors.As(err, &connErr)) {
		a.True(connErr.TLS)
		a.Equal([]string{"https://localhost"}, connErr.Servers)
		a.Contains(connErr.Error(), "TLS failure")
	}
	a.Equal([]string{"localhost:8160"}, f.net.Dials())
}

func TestTLSToPlainServerAborts(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	// A server that does not speak TLS also fails the handshake.
	f.net.Route("mismatch", f.plain.Addr())
	_, err := f.sel.Connect(context.Background(), []string{"mismatch", "http://plain"}, f.caFile)

	var connErr *Error
	if a.True(errors.As(err, &connErr)) {
		a.True(connErr.TLS)
	}
	a.Equal([]string{"mismatch:8160"}, f.net.Dials())
}

func TestHandshakeHangupContinues(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)
	f := newFixture(t)

	hangup, err := pdstest.NewHangup()
	r.NoError(err)
	t.Cleanup(hangup.Close)
	f.net.Route("flaky", hangup.Addr())

	sess, err := f.sel.Connect(context.Background(),
		[]string{"https://flaky", "https://localhost"}, f.caFile)
	if !a.NoError(err) {
		return
	}
	a.Equal("localhost", sess.Address())
	a.Equal([]string{"flaky:8160", "localhost:8160"}, f.net.Dials())
}

func TestHandshakeHangupOnly(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)
	f := newFixture(t)

	hangup, err := pdstest.NewHangup()
	r.NoError(err)
	t.Cleanup(hangup.Close)
	f.net.Route("flaky", hangup.Addr())

	_, err = f.sel.Connect(context.Background(), []string{"https://flaky"}, f.caFile)
	var connErr *Error
	if a.True(errors.As(err, &connErr)) {
		a.False(connErr.TLS)
		a.Equal([]string{"https://flaky"}, connErr.Servers)
		a.Contains(connErr.Error(), "failed to connect to any of [https://flaky]")
	}
}

func TestTransportFailure(t *testing.T) {
	tcs := []struct {
		name      string
		err       error
		transport bool
	}{
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"timeout", &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, true},
		{"wrapped eof", errors.Wrap(io.EOF, "handshake"), true},
		{"unknown authority", x509.UnknownAuthorityError{}, false},
		{"hostname", x509.HostnameError{Host: "example.com"}, false},
		{"invalid", x509.CertificateInvalidError{Reason: x509.Expired}, false},
		{"record header", tls.RecordHeaderError{Msg: "not TLS"}, false},
		{"remote alert", &net.OpError{Op: "remote error", Err: errors.New("tls: bad certificate")}, false},
		{"protocol", errors.New("tls: server selected unsupported protocol version"), false},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.transport, transportFailure(tc.err))
		})
	}
}

func TestAllUnreachable(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	servers := []string{"https://s1.example", "http://s2.example", "s3.example"}
	_, err := f.sel.Connect(context.Background(), servers, f.caFile)

	var connErr *Error
	if a.True(errors.As(err, &connErr)) {
		a.False(connErr.TLS)
		a.Equal(servers, connErr.Servers)
		a.Contains(connErr.Error(), "failed to connect to any of [https://s1.example, http://s2.example, s3.example]")
		a.Contains(connErr.Error(), "no such host")
	}
	a.Len(f.net.Dials(), 3)
}

func TestNoServers(t *testing.T) {
	a := assert.New(t)

	_, err := (&Selector{}).Connect(context.Background(), nil, "")
	var connErr *Error
	a.True(errors.As(err, &connErr))
}

func TestBadCAFile(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	_, err := f.sel.Connect(context.Background(),
		[]string{"https://localhost"}, filepath.Join(t.TempDir(), "missing.pem"))
	var connErr *Error
	if a.True(errors.As(err, &connErr)) {
		a.True(connErr.TLS)
		a.Empty(connErr.Servers)
	}

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not a certificate"), 0644))
	_, err = f.sel.Connect(context.Background(), []string{"https://localhost"}, empty)
	a.Error(err)

	a.Empty(f.net.Dials())
}

func TestCanceledContext(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.sel.Connect(ctx, []string{"https://localhost", "http://plain"}, f.caFile)
	var connErr *Error
	if a.True(errors.As(err, &connErr)) {
		a.False(connErr.TLS)
		a.Equal([]string{"https://localhost"}, connErr.Servers)
	}
}

// TestSessionReusesConnection verifies that the connection opened
// during selection carries the first request.
func TestSessionReusesConnection(t *testing.T) {
	for _, server := range []string{"https://localhost", "http://plain"} {
		server := server
		t.Run(server, func(t *testing.T) {
			a := assert.New(t)
			f := newFixture(t)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			sess, err := f.sel.Connect(ctx, []string{server}, f.caFile)
			require.NoError(t, err)
			defer sess.Close()

			u := sess.URL("/v1/hiera-data", map[string][]string{"level": {"common"}})
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+pdstest.MakeToken("test", time.Hour))

			resp, err := sess.Do(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			a.NoError(err)
			a.Equal(http.StatusOK, resp.StatusCode)
			a.JSONEq("[]", string(body))

			a.Len(f.net.Dials(), 1)
		})
	}
}
