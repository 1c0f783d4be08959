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

// Package server contains a long-running HTTP front end that performs
// lookups on behalf of hosts that cannot embed the client.
package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobvawter/latch"
	"github.com/cockroachlabs/pds-client/internal/lookup"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server answers lookup requests over HTTP.
type Server struct {
	activeLookups   *latch.Counter
	cfg             *Config
	client          *lookup.Client
	lookupListener  net.Listener
	metricsListener net.Listener
	tlsConfig       *tls.Config
}

var activeLookups = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pds_active_lookup_count",
	Help: "the number of lookup requests currently being served",
})

// New constructs a lookup server.
func New(ctx context.Context, cfg *Config, client *lookup.Client) (_ *Server, cancel func(), _ error) {
	var err error

	s := &Server{
		activeLookups: latch.New(),
		cfg:           cfg,
		client:        client,
	}

	if s.tlsConfig, err = cfg.tlsConfig(); err != nil {
		return nil, func() {}, err
	}

	if s.lookupListener, err = net.Listen("tcp", cfg.BindAddr); err != nil {
		return nil, func() {}, errors.Wrapf(err, "could not bind to %q", cfg.BindAddr)
	}

	if cfg.MetricsAddr != "" {
		if s.metricsListener, err = net.Listen("tcp", cfg.MetricsAddr); err != nil {
			_ = s.lookupListener.Close()
			return nil, func() {}, errors.Wrapf(err, "could not bind to %q", cfg.MetricsAddr)
		}
	}

	// In-flight lookups are not canceled by shutdown; they drain.
	go s.serveLookups(ctx)

	ctx, stop := context.WithCancel(ctx)
	go s.resetLoop(ctx)
	go s.serveMetrics(ctx)

	return s, func() {
		// Stop accepting new requests.
		_ = s.lookupListener.Close()
		// Cancel the running context.
		stop()
		// Wait for lookups to drain or to time out.
		select {
		case <-s.activeLookups.Wait():
			log.Info("server drained cleanly")
		case <-time.After(cfg.GracePeriod):
			log.Warn("shutdown grace period expired")
		}
		if s.metricsListener != nil {
			_ = s.metricsListener.Close()
		}
	}, nil
}

// Addr returns the address of the lookup listener.
func (s *Server) Addr() net.Addr {
	return s.lookupListener.Addr()
}

// MetricsAddr returns the address of the metrics listener, or nil.
func (s *Server) MetricsAddr() net.Addr {
	if s.metricsListener == nil {
		return nil
	}
	return s.metricsListener.Addr()
}

// resetLoop discards all cached sessions and configuration when the
// reset interval elapses or a SIGHUP is received.
func (s *Server) resetLoop(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)

	for {
		var tick <-chan time.Time
		if s.cfg.Reset > 0 {
			tick = time.After(s.cfg.Reset)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-ch:
		}
		s.client.Registry.Reset()
		log.Info("cached PDS sessions discarded")
	}
}

func (s *Server) serveMetrics(ctx context.Context) {
	if s.metricsListener == nil {
		return
	}
	log.WithField("addr", s.metricsListener.Addr()).Info("metrics started")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/vars", promhttp.Handler())
	mux.Handle("/", http.NotFoundHandler())

	metrics := &http.Server{
		BaseContext: func(net.Listener) context.Context { return ctx },
		Handler:     mux,
	}
	_ = metrics.Serve(s.metricsListener)
}

// serveLookups runs the lookup endpoint until the listener is closed.
func (s *Server) serveLookups(ctx context.Context) {
	log.WithField("addr", s.lookupListener.Addr()).Info("lookup server started")

	mux := http.NewServeMux()
	mux.HandleFunc(LookupPath, s.handleLookup)
	mux.Handle("/", http.NotFoundHandler())

	srv := &http.Server{
		BaseContext: func(net.Listener) context.Context { return ctx },
		Handler:     mux,
	}
	l := s.lookupListener
	if s.tlsConfig != nil {
		l = tls.NewListener(l, s.tlsConfig)
	}
	if err := srv.Serve(l); err != nil && !errors.Is(err, net.ErrClosed) {
		log.WithError(err).Error("lookup server stopped")
	}
}
