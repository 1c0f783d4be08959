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

package config

import (
	"net/url"
	"strings"
)

// Resolved is the merged view of Options, the configuration file, and
// built-in defaults for a single lookup. It is not modified after
// Resolve returns it.
type Resolved struct {
	Level          string
	Token          string
	Servers        []string
	CAFile         string
	OnConfigAbsent Policy
}

// Resolve merges the tiers field by field: an explicit option wins,
// then the file value, then a built-in default. Only OnConfigAbsent has
// a default. A nil file is treated as empty. Empty strings and an empty
// Servers option count as not set. A servers key that is present in the
// file, even as an empty list, takes the place of baseuri.
//
// If the token or servers remain unresolved, Resolve returns an
// *AbsentError alongside the partially-resolved configuration.
func Resolve(opts *Options, file *File) (*Resolved, error) {
	if file == nil {
		file = &File{}
	}
	if opts.Level == "" {
		return nil, errorf("a lookup level (uri) must be provided")
	}

	ret := &Resolved{
		Level:          opts.Level,
		Token:          first(opts.Token, file.Token),
		CAFile:         first(opts.CAFile, file.CAFile),
		OnConfigAbsent: Policy(first(string(opts.OnConfigAbsent), string(DefaultPolicy))),
	}
	if err := ret.OnConfigAbsent.validate(); err != nil {
		return nil, err
	}

	switch {
	case len(opts.Servers) > 0:
		ret.Servers = append([]string{}, opts.Servers...)
	case file.Servers != nil:
		if len(file.Servers) > 0 {
			ret.Servers = append([]string{}, file.Servers...)
		}
	case file.BaseURI != "":
		servers, err := serversFromBaseURI(file.BaseURI)
		if err != nil {
			return nil, err
		}
		ret.Servers = servers
	}

	var missing []string
	if ret.Token == "" {
		missing = append(missing, "token")
	}
	if len(ret.Servers) == 0 {
		missing = append(missing, "servers")
	}
	if len(missing) > 0 {
		return ret, &AbsentError{Missing: missing, Path: opts.Path(), Policy: ret.OnConfigAbsent}
	}
	return ret, nil
}

// serversFromBaseURI reduces a base URI to a single scheme://host
// entry. Any port, path, or query is discarded.
func serversFromBaseURI(raw string) ([]string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, wrapf(err, "could not parse baseuri %q", raw)
	}
	host := u.Hostname()
	if u.Scheme == "" || host == "" {
		return nil, errorf("baseuri %q must be of the form scheme://host", raw)
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return []string{u.Scheme + "://" + host}, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
