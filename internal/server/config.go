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

package server

import (
	"crypto/tls"
	"time"

	"github.com/cockroachlabs/pds-client/internal/config"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config contains the settings for the lookup server.
type Config struct {
	BindAddr          string         // Address to bind the lookup endpoint to.
	bindCert, bindKey string         // Paths to TLS configurations.
	insecure          bool           // Sanity check to ensure that the operator really means it.
	GracePeriod       time.Duration  // The amount of time to wait for in-flight lookups to drain.
	Lookup            config.Options // Default options for every lookup; Level is ignored.
	MetricsAddr       string         // Address to bind the prometheus metrics server to.
	Reset             time.Duration  // Duration between discarding cached sessions.
}

// Bind adds flags to the set.
func (c *Config) Bind(f *pflag.FlagSet) {
	f.StringVar(&c.BindAddr, "bindAddr", "127.0.0.1:8161", "a network address and port to bind to")
	f.StringVar(&c.bindCert, "bindCert", "",
		"the path to a PEM-encoded certificate chain to present to incoming connections")
	f.StringVar(&c.bindKey, "bindKey", "",
		"the path to a PEM-encoded private key to encrypt incoming connections with")
	f.DurationVar(&c.GracePeriod, "gracePeriod", 30*time.Second,
		"the amount of time to wait for in-flight lookups to complete when shutting down")
	f.BoolVar(&c.insecure, "insecure", false, "this flag must be set if no TLS configuration is provided")
	f.StringVar(&c.MetricsAddr, "metricsAddr", "", "an address to bind a metrics HTTP server to")
	f.DurationVar(&c.Reset, "reset", 0,
		"how often to discard cached PDS sessions and configuration; set to 0 to disable; kill -HUP to manually reset")
	c.Lookup.Bind(f)
}

// tlsConfig returns the TLS configuration to use for incoming lookup
// requests. It will return nil if TLS should not be used.
func (c *Config) tlsConfig() (*tls.Config, error) {
	if c.bindCert != "" && c.bindKey != "" {
		cert, err := tls.LoadX509KeyPair(c.bindCert, c.bindKey)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}
	if (c.bindKey == "") != (c.bindCert == "") {
		return nil, errors.New("both or neither of --bindKey and --bindCert must be specified")
	}
	if c.insecure {
		return nil, nil
	}
	return nil, errors.New("no --bindKey or --bindCert provided, must specify --insecure")
}
