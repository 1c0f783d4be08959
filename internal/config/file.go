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
	"io/fs"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// File holds the settings read from a pds-client YAML file. Keys other
// than these are ignored.
type File struct {
	Token   string     `yaml:"token"`
	Servers stringList `yaml:"servers"` // Non-nil if the key is present.
	BaseURI string     `yaml:"baseuri"` // Only used if Servers is absent.
	CAFile  string     `yaml:"ca-file"`
}

// ReadFile loads the configuration file at path. A file that does not
// exist yields an empty File, so that its tier simply contributes
// nothing.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.WithField("path", path).Trace("no pds-client configuration file")
		return &File{}, nil
	}
	if err != nil {
		return nil, wrapf(err, "could not read %q", path)
	}

	ret := &File{}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, wrapf(err, "could not parse %q", path)
	}
	log.WithField("path", path).Trace("loaded pds-client configuration file")
	return ret, nil
}

// stringList accepts either a YAML sequence of strings or a single
// string. An absent key leaves it nil.
type stringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var ret []string
	if err := value.Decode(&ret); err != nil {
		return err
	}
	if ret == nil {
		ret = []string{}
	}
	*l = ret
	return nil
}
