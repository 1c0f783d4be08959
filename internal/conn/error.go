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
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Error is returned when no session could be established. It is always
// fatal to the lookup.
type Error struct {
	Servers []string // The servers that were attempted, in order.
	TLS     bool     // Selection stopped on a TLS or certificate failure.
	cause   error
}

// Error implements error.
func (e *Error) Error() string {
	if e.TLS {
		if len(e.Servers) == 0 {
			return fmt.Sprintf("could not configure TLS for PDS: %v", e.cause)
		}
		return fmt.Sprintf("TLS failure connecting to PDS server %q: %v", e.Servers[len(e.Servers)-1], e.cause)
	}
	if len(e.Servers) == 0 {
		return fmt.Sprintf("no PDS servers to connect to: %v", e.cause)
	}
	return fmt.Sprintf("failed to connect to any of [%s]: %v", strings.Join(e.Servers, ", "), e.cause)
}

// Cause is compatible with github.com/pkg/errors.
func (e *Error) Cause() error { return e.cause }

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.cause }

// attemptErrors aggregates the transport failures of each candidate.
func attemptErrors() *multierror.Error {
	return &multierror.Error{
		ErrorFormat: func(errs []error) string {
			parts := make([]string, len(errs))
			for i, err := range errs {
				parts[i] = err.Error()
			}
			return strings.Join(parts, "; ")
		},
	}
}
