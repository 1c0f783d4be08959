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

// Package lookup retrieves hiera data from the Puppet Data Service.
package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachlabs/pds-client/internal/config"
	"github.com/cockroachlabs/pds-client/internal/conn"
	"github.com/cockroachlabs/pds-client/internal/scope"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// Client performs hiera data lookups. It is safe for concurrent use and
// is intended to live for the whole process.
type Client struct {
	Registry *scope.Registry
	Selector *conn.Selector
}

// NewClient constructs a Client with an empty registry that dials
// servers directly.
func NewClient() *Client {
	return &Client{
		Registry: scope.NewRegistry(),
		Selector: &conn.Selector{},
	}
}

// DataHash returns the hiera data for opts.Level. Sessions and
// configuration file reads are cached under scopeID, which must be
// comparable; see scope.CheckID.
//
// If no token or servers are configured and the on_config_absent
// policy is continue, host.NotFound is called and DataHash returns a
// nil Result and a nil error.
func (c *Client) DataHash(
	ctx context.Context, host Context, scopeID interface{}, opts *config.Options,
) (Result, error) {
	start := time.Now()
	ret, outcome, err := c.dataHash(ctx, host, scopeID, opts)
	lookups.WithLabelValues(outcome).Inc()
	lookupDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return ret, err
}

func (c *Client) dataHash(
	ctx context.Context, host Context, scopeID interface{}, opts *config.Options,
) (Result, string, error) {
	if err := scope.CheckID(scopeID); err != nil {
		return nil, "config_error", err
	}
	entry := c.Registry.Entry(scopeID)

	file, err := entry.File(opts.Path())
	if err != nil {
		return nil, "config_error", err
	}

	res, err := config.Resolve(opts, file)
	if absent := (*config.AbsentError)(nil); errors.As(err, &absent) {
		if absent.Policy == config.PolicyContinue {
			host.Explain(func() string { return absent.Error() + ", continuing" })
			host.NotFound()
			return nil, "not_found", nil
		}
		return nil, "config_absent", err
	}
	if err != nil {
		return nil, "config_error", err
	}

	explainToken(host, res.Token)

	sess, err := entry.Session(ctx, c.Selector, res.Servers, res.CAFile, host)
	if err != nil {
		return nil, "connection_error", err
	}

	data, err := Fetch(ctx, sess, res.Level, res.Token)
	if err != nil {
		host.Explain(func() string { return err.Error() })
		return nil, "request_error", err
	}
	host.Explain(func() string {
		return fmt.Sprintf("Found %d keys for level %q on %s", len(data), res.Level, sess.Address())
	})
	return data, "ok", nil
}

// explainToken narrates the subject and expiry of a JWT bearer token.
// The signature is not checked; only the server can do that.
func explainToken(host Context, token string) {
	host.Explain(func() string {
		claims := &jwt.RegisteredClaims{}
		if _, _, err := (&jwt.Parser{}).ParseUnverified(token, claims); err != nil {
			return "PDS token is opaque"
		}
		if claims.ExpiresAt == nil {
			return fmt.Sprintf("PDS token for %q has no expiry", claims.Subject)
		}
		exp := claims.ExpiresAt.Time
		if exp.Before(time.Now()) {
			return fmt.Sprintf("PDS token for %q expired at %s", claims.Subject, exp.Format(time.RFC3339))
		}
		return fmt.Sprintf("PDS token for %q expires at %s", claims.Subject, exp.Format(time.RFC3339))
	})
}
