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
	"sync"

	"github.com/cockroachlabs/pds-client/internal/scope"
	log "github.com/sirupsen/logrus"
)

// Context is supplied by the host for each lookup.
type Context interface {
	scope.Explainer

	// NotFound is called instead of returning an error when no PDS
	// configuration exists and the on_config_absent policy is continue.
	NotFound()
}

// LogContext is a Context that sends narration to a logrus entry at
// debug level.
type LogContext struct {
	Entry *log.Entry // If nil, the standard logger is used.

	mu struct {
		sync.Mutex
		notFound bool
	}
}

var _ Context = (*LogContext)(nil)

// Explain implements Context.
func (c *LogContext) Explain(msg func() string) {
	entry := c.Entry
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	if !entry.Logger.IsLevelEnabled(log.DebugLevel) {
		return
	}
	entry.Debug(msg())
}

// NotFound implements Context.
func (c *LogContext) NotFound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.notFound = true
}

// IsNotFound returns true if NotFound has been called.
func (c *LogContext) IsNotFound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.notFound
}
