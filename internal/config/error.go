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
	"strings"
)

// Error reports an invalid configuration. It is never recovered from.
type Error struct {
	msg   string
	cause error
}

func errorf(format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

func wrapf(cause error, format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), cause: cause}
}

// Error implements error.
func (e *Error) Error() string {
	if e.cause == nil {
		return "invalid PDS configuration: " + e.msg
	}
	return "invalid PDS configuration: " + e.msg + ": " + e.cause.Error()
}

// Cause is compatible with github.com/pkg/errors.
func (e *Error) Cause() error { return e.cause }

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error { return e.cause }

// AbsentError is returned when a token or server list could not be
// found in any configuration tier. The caller decides what to do with
// it based on Policy.
type AbsentError struct {
	Missing []string // Names of the unresolved settings.
	Path    string   // The configuration file that was consulted.
	Policy  Policy   // The resolved on_config_absent policy.
}

// Error implements error.
func (e *AbsentError) Error() string {
	return fmt.Sprintf("PDS configuration absent: no %s found in options or %s",
		strings.Join(e.Missing, " or "), e.Path)
}
