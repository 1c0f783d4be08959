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

package lookup

import (
	"fmt"
	"net/http"
	"strings"
)

// RequestError is returned when the PDS server could not be queried or
// rejected the request.
type RequestError struct {
	Server string // The host the session is connected to.
	Level  string
	Status int    // Zero if no response was received.
	Body   string // Response body, if one was read.
	cause  error
}

// Error implements error.
func (e *RequestError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PDS request for level %q to %s failed", e.Level, e.Server)
	if e.Status != 0 {
		fmt.Fprintf(&sb, ": %d %s", e.Status, http.StatusText(e.Status))
	}
	if e.cause != nil {
		fmt.Fprintf(&sb, ": %v", e.cause)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		sb.WriteString(": ")
		sb.WriteString(body)
	}
	return sb.String()
}

// Cause is compatible with github.com/pkg/errors.
func (e *RequestError) Cause() error { return e.cause }

// Unwrap returns the underlying error, if any.
func (e *RequestError) Unwrap() error { return e.cause }
