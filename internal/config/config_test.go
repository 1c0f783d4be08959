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
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile(t *testing.T) {
	a := assert.New(t)

	f, err := ReadFile("./testdata/pds-client.yaml")
	if a.NoError(err) {
		a.Equal("file-token", f.Token)
		a.Equal([]string{"https://pds-1.example.com", "http://pds-2.example.com"}, []string(f.Servers))
		a.Equal("/etc/puppetlabs/puppet/ssl/certs/ca.pem", f.CAFile)
		a.Empty(f.BaseURI)
	}

	f, err = ReadFile("./testdata/single-server.yaml")
	if a.NoError(err) {
		a.Equal([]string{"pds.example.com"}, []string(f.Servers))
	}
}

func TestReadFileMissing(t *testing.T) {
	a := assert.New(t)

	f, err := ReadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	a.NoError(err)
	a.Equal(&File{}, f)
}

func TestReadFileMalformed(t *testing.T) {
	a := assert.New(t)

	_, err := ReadFile("./testdata/malformed.yaml")
	var cfgErr *Error
	a.True(errors.As(err, &cfgErr))
	a.Contains(err.Error(), "could not parse")
}

// TestPrecedence checks every combination of an explicit option and a
// file value for each field that has both tiers.
func TestPrecedence(t *testing.T) {
	const optToken, fileToken = "opt-token", "file-token"
	const optCA, fileCA = "/opt/ca.pem", "/file/ca.pem"
	optServers := []string{"https://opt.example.com"}
	fileServers := []string{"https://file.example.com"}

	for _, hasOpt := range []bool{true, false} {
		for _, hasFile := range []bool{true, false} {
			hasOpt, hasFile := hasOpt, hasFile
			t.Run(fmt.Sprintf("option=%t/file=%t", hasOpt, hasFile), func(t *testing.T) {
				a := assert.New(t)

				opts := &Options{Level: "common"}
				file := &File{}
				if hasOpt {
					opts.Token = optToken
					opts.CAFile = optCA
					opts.Servers = optServers
				}
				if hasFile {
					file.Token = fileToken
					file.CAFile = fileCA
					file.Servers = fileServers
				}

				res, err := Resolve(opts, file)
				switch {
				case hasOpt:
					a.NoError(err)
					a.Equal(optToken, res.Token)
					a.Equal(optCA, res.CAFile)
					a.Equal(optServers, res.Servers)
				case hasFile:
					a.NoError(err)
					a.Equal(fileToken, res.Token)
					a.Equal(fileCA, res.CAFile)
					a.Equal(fileServers, res.Servers)
				default:
					var absent *AbsentError
					if a.True(errors.As(err, &absent)) {
						a.Equal([]string{"token", "servers"}, absent.Missing)
						a.Equal(PolicyFail, absent.Policy)
					}
					a.Empty(res.Token)
					a.Empty(res.Servers)
				}
				a.Equal("common", res.Level)
				a.Equal(PolicyFail, res.OnConfigAbsent)
			})
		}
	}
}

func TestMixedTiers(t *testing.T) {
	a := assert.New(t)

	res, err := Resolve(
		&Options{Level: "nodes/foo", Token: "opt-token"},
		&File{Token: "file-token", Servers: []string{"https://file.example.com"}})
	if a.NoError(err) {
		a.Equal("opt-token", res.Token)
		a.Equal([]string{"https://file.example.com"}, res.Servers)
		a.Empty(res.CAFile)
	}
}

func TestBaseURI(t *testing.T) {
	a := assert.New(t)

	res, err := Resolve(&Options{Level: "common", Token: "t"}, &File{BaseURI: "https://a.example"})
	if a.NoError(err) {
		a.Equal([]string{"https://a.example"}, res.Servers)
	}

	f, err := ReadFile("./testdata/baseuri.yaml")
	require.NoError(t, err)
	res, err = Resolve(&Options{Level: "common"}, f)
	if a.NoError(err) {
		a.Equal([]string{"https://pds.example.com"}, res.Servers)
	}

	// Explicit servers in the file take priority over the base URI.
	res, err = Resolve(&Options{Level: "common", Token: "t"},
		&File{BaseURI: "https://a.example", Servers: []string{"http://b.example"}})
	if a.NoError(err) {
		a.Equal([]string{"http://b.example"}, res.Servers)
	}

	// As do explicit options.
	res, err = Resolve(&Options{Level: "common", Token: "t", Servers: []string{"c.example"}},
		&File{BaseURI: "https://a.example"})
	if a.NoError(err) {
		a.Equal([]string{"c.example"}, res.Servers)
	}

	res, err = Resolve(&Options{Level: "common", Token: "t"}, &File{BaseURI: "https://[::1]:8160/"})
	if a.NoError(err) {
		a.Equal([]string{"https://[::1]"}, res.Servers)
	}

	_, err = Resolve(&Options{Level: "common", Token: "t"}, &File{BaseURI: "a.example"})
	var cfgErr *Error
	a.True(errors.As(err, &cfgErr))
}

func TestEmptyServersInFile(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	write := func(name, body string) *File {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		f, err := ReadFile(path)
		require.NoError(t, err)
		return f
	}

	// An explicit empty list is present, so baseuri is not consulted.
	f := write("empty.yaml", "token: t\nservers: []\nbaseuri: https://pds.example.com\n")
	a.NotNil(f.Servers)
	res, err := Resolve(&Options{Level: "common"}, f)
	var absent *AbsentError
	if a.True(errors.As(err, &absent)) {
		a.Equal([]string{"servers"}, absent.Missing)
	}
	a.Empty(res.Servers)

	// A null value is the same as an absent key.
	f = write("null.yaml", "token: t\nservers:\nbaseuri: https://pds.example.com\n")
	a.Nil(f.Servers)
	res, err = Resolve(&Options{Level: "common"}, f)
	if a.NoError(err) {
		a.Equal([]string{"https://pds.example.com"}, res.Servers)
	}

	// Explicit options still win over an empty file list.
	f = write("empty-again.yaml", "servers: []\n")
	res, err = Resolve(&Options{Level: "common", Token: "t", Servers: []string{"a.example"}}, f)
	if a.NoError(err) {
		a.Equal([]string{"a.example"}, res.Servers)
	}
}

func TestPolicy(t *testing.T) {
	a := assert.New(t)

	res, err := Resolve(&Options{Level: "common", OnConfigAbsent: PolicyContinue}, nil)
	var absent *AbsentError
	if a.True(errors.As(err, &absent)) {
		a.Equal(PolicyContinue, absent.Policy)
		a.Equal(DefaultPath, absent.Path)
	}
	a.Equal(PolicyContinue, res.OnConfigAbsent)

	// An invalid policy is reported even when everything else resolves.
	_, err = Resolve(&Options{
		Level:          "common",
		Token:          "t",
		Servers:        []string{"h1"},
		OnConfigAbsent: "ignore",
	}, nil)
	var cfgErr *Error
	if a.True(errors.As(err, &cfgErr)) {
		a.Contains(err.Error(), `"ignore"`)
	}
}

func TestMissingLevel(t *testing.T) {
	a := assert.New(t)

	_, err := Resolve(&Options{Token: "t", Servers: []string{"h1"}}, nil)
	var cfgErr *Error
	a.True(errors.As(err, &cfgErr))
}

func TestResolveIdempotent(t *testing.T) {
	a := assert.New(t)

	opts := &Options{Level: "common", Token: "t"}
	file := &File{BaseURI: "https://a.example"}
	once, err := Resolve(opts, file)
	require.NoError(t, err)
	twice, err := Resolve(opts, file)
	require.NoError(t, err)
	a.Equal(once, twice)

	// The result does not alias the inputs.
	once.Servers[0] = "changed"
	a.Equal([]string{"https://a.example"}, twice.Servers)
}

func TestFromMap(t *testing.T) {
	a := assert.New(t)

	opts, err := FromMap(map[string]interface{}{
		"uri":              "common",
		"token":            "t",
		"servers":          []interface{}{"https://h1", "http://h2"},
		"ca-file":          "/ca.pem",
		"config":           "/tmp/pds.yaml",
		"on_config_absent": "continue",
		"ignored":          42,
	})
	if a.NoError(err) {
		a.Equal(&Options{
			Level:          "common",
			Token:          "t",
			Servers:        []string{"https://h1", "http://h2"},
			CAFile:         "/ca.pem",
			ConfigPath:     "/tmp/pds.yaml",
			OnConfigAbsent: PolicyContinue,
		}, opts)
	}

	opts, err = FromMap(map[string]interface{}{"uri": "common", "servers": "h1"})
	if a.NoError(err) {
		a.Equal([]string{"h1"}, opts.Servers)
		a.Equal(DefaultPath, opts.Path())
	}

	opts, err = FromMap(map[string]interface{}{"uri": "common"})
	if a.NoError(err) {
		a.Nil(opts.Servers)
	}

	_, err = FromMap(map[string]interface{}{"uri": "common", "servers": []interface{}{"h1", 2}})
	a.Error(err)
	_, err = FromMap(map[string]interface{}{"uri": 12})
	a.Error(err)
}

func TestBind(t *testing.T) {
	a := assert.New(t)

	opts := &Options{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.Bind(flags)
	a.NoError(flags.Parse([]string{
		"--token", "t",
		"--servers", "https://h1,http://h2",
		"--on-config-absent", "continue",
	}))
	a.Equal("t", opts.Token)
	a.Equal([]string{"https://h1", "http://h2"}, opts.Servers)
	a.Equal(PolicyContinue, opts.OnConfigAbsent)
	a.Equal(DefaultPath, opts.ConfigPath)
}

func TestReadFileUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	a := assert.New(t)

	path := filepath.Join(t.TempDir(), "pds-client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: t\n"), 0))
	_, err := ReadFile(path)
	var cfgErr *Error
	a.True(errors.As(err, &cfgErr))
}
