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

// Package config contains the components that resolve the settings
// needed to reach a PDS server.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// DefaultPath is the location of the client configuration file when
// no other path is given.
const DefaultPath = "/etc/puppetlabs/pds/pds-client.yaml"

// Policy determines what happens when a token or server list cannot be
// found in any configuration tier.
type Policy string

// The supported values for Policy.
const (
	PolicyFail     Policy = "fail"
	PolicyContinue Policy = "continue"
)

// DefaultPolicy is used when no policy is set.
const DefaultPolicy = PolicyFail

var _ pflag.Value = (*Policy)(nil)

// Set implements pflag.Value. Validation is deferred to Resolve.
func (p *Policy) Set(s string) error {
	*p = Policy(s)
	return nil
}

// String implements pflag.Value.
func (p *Policy) String() string { return string(*p) }

// Type implements pflag.Value.
func (p *Policy) Type() string { return "policy" }

func (p Policy) validate() error {
	switch p {
	case PolicyFail, PolicyContinue:
		return nil
	default:
		return errorf("on_config_absent must be %q or %q, got %q", PolicyFail, PolicyContinue, string(p))
	}
}

// Options are the call-time settings supplied by the host. A zero
// value or an empty Servers list means the option was not given.
type Options struct {
	Level          string   // The lookup key, required.
	Token          string   // Bearer token for the PDS API.
	Servers        []string // Ordered candidate servers.
	CAFile         string   // PEM bundle used to verify servers.
	ConfigPath     string   // Path to the YAML configuration file.
	OnConfigAbsent Policy   // What to do if token or servers are missing.
}

// Bind adds flags to the set. The level is not bound, since callers
// supply it positionally.
func (o *Options) Bind(f *pflag.FlagSet) {
	f.StringVar(&o.Token, "token", "", "the bearer token used to authenticate to PDS")
	f.StringSliceVar(&o.Servers, "servers", nil,
		"an ordered list of PDS servers to try; scheme defaults to https")
	f.StringVar(&o.CAFile, "ca-file", "", "a PEM-formatted CA bundle used to verify PDS servers")
	f.StringVar(&o.ConfigPath, "config", DefaultPath, "the path to the pds-client YAML configuration")
	f.Var(&o.OnConfigAbsent, "on-config-absent",
		"behavior when no token or servers are configured: fail or continue (default fail)")
}

// Path returns the configuration file path, or DefaultPath.
func (o *Options) Path() string {
	if o.ConfigPath == "" {
		return DefaultPath
	}
	return o.ConfigPath
}

// FromMap extracts Options from the loosely-typed option mapping that
// a lookup host passes in. Unknown keys are ignored. The servers key
// may hold a single string or a list of strings.
func FromMap(m map[string]interface{}) (*Options, error) {
	ret := &Options{}
	var err error

	if ret.Level, err = stringOpt(m, "uri"); err != nil {
		return nil, err
	}
	if ret.Token, err = stringOpt(m, "token"); err != nil {
		return nil, err
	}
	if ret.CAFile, err = stringOpt(m, "ca-file"); err != nil {
		return nil, err
	}
	if ret.ConfigPath, err = stringOpt(m, "config"); err != nil {
		return nil, err
	}
	policy, err := stringOpt(m, "on_config_absent")
	if err != nil {
		return nil, err
	}
	ret.OnConfigAbsent = Policy(policy)

	if raw, ok := m["servers"]; ok && raw != nil {
		switch t := raw.(type) {
		case string:
			ret.Servers = []string{t}
		case []string:
			ret.Servers = append([]string{}, t...)
		case []interface{}:
			ret.Servers = make([]string, 0, len(t))
			for i, elt := range t {
				s, ok := elt.(string)
				if !ok {
					return nil, errorf("servers[%d] must be a string, got %T", i, elt)
				}
				ret.Servers = append(ret.Servers, s)
			}
		default:
			return nil, errorf("servers must be a string or list of strings, got %T", raw)
		}
	}

	return ret, nil
}

func stringOpt(m map[string]interface{}, key string) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", nil
	}
	switch t := raw.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", errorf("option %q must be a string, got %T", key, raw)
	}
}
