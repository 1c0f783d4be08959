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

package scope

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachlabs/pds-client/internal/config"
	"github.com/cockroachlabs/pds-client/internal/conn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Explainer receives diagnostic narration. The function is only
// invoked if the message will actually be recorded.
type Explainer interface {
	Explain(msg func() string)
}

// Entry holds the cached state of a single scope: at most one
// session, and the configuration files read on its behalf.
type Entry struct {
	id interface{}

	files struct {
		sync.Mutex
		byPath map[string]*config.File
	}

	mu struct {
		sync.Mutex
		session *conn.Session
		pending  *attempt // Non-nil while a connection attempt is running.
		released bool     // Set once the registry has discarded the entry.
		waiting  int      // Callers blocked on pending.
	}
}

// attempt is a connection attempt whose outcome is shared by every
// caller that arrived while it was running.
type attempt struct {
	done    chan struct{}
	session *conn.Session
	err     error
}

func newEntry(id interface{}) *Entry {
	e := &Entry{id: id}
	e.files.byPath = make(map[string]*config.File)
	return e
}

// File returns the configuration file at path, reading it at most once
// for the lifetime of the entry. Failed reads are not cached.
func (e *Entry) File(path string) (*config.File, error) {
	e.files.Lock()
	defer e.files.Unlock()

	if f, ok := e.files.byPath[path]; ok {
		return f, nil
	}
	f, err := config.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e.files.byPath[path] = f
	return f, nil
}

// Session returns the cached session for the scope. If there is none,
// the servers are tried in order using the Selector and a successful
// result is cached. A failure is not cached, so the next call will
// try again.
//
// At most one connection attempt runs at a time. Callers that arrive
// while an attempt is in progress wait for it and receive its result.
// A cached session is never checked for liveness. Once the registry
// has discarded the entry, new sessions are returned but not cached.
func (e *Entry) Session(
	ctx context.Context, sel *conn.Selector, servers []string, caFile string, explain Explainer,
) (*conn.Session, error) {
	e.mu.Lock()
	if s := e.mu.session; s != nil {
		e.mu.Unlock()
		cacheHits.Inc()
		explain.Explain(func() string {
			return fmt.Sprintf("Re-using established PDS connection to %s from cache", s.Address())
		})
		return s, nil
	}

	if a := e.mu.pending; a != nil {
		e.mu.waiting++
		e.mu.Unlock()
		connectWaiters.Inc()
		defer func() {
			connectWaiters.Dec()
			e.mu.Lock()
			e.mu.waiting--
			e.mu.Unlock()
		}()

		explain.Explain(func() string { return "PDS connection is being established by another lookup, waiting" })
		select {
		case <-a.done:
			return a.session, a.err
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}

	a := &attempt{done: make(chan struct{})}
	e.mu.pending = a
	e.mu.Unlock()

	cacheMisses.Inc()
	explain.Explain(func() string { return "PDS connection not cached, establishing" })
	a.session, a.err = sel.Connect(ctx, servers, caFile)

	e.mu.Lock()
	e.mu.pending = nil
	released := e.mu.released
	if a.err == nil && !released {
		e.mu.session = a.session
	}
	e.mu.Unlock()
	close(a.done)

	if a.err == nil && released {
		log.WithField("scope", e.id).Debug("scope was reset during connect, session not cached")
	}

	if a.err != nil {
		log.WithError(a.err).WithField("scope", e.id).Debug("could not establish PDS session")
		explain.Explain(func() string { return fmt.Sprintf("Failed to establish PDS connection: %v", a.err) })
		return nil, a.err
	}
	explain.Explain(func() string {
		return fmt.Sprintf("PDS connection established to %s", a.session.Address())
	})
	return a.session, nil
}

// Cached returns the cached session, if any, without connecting.
func (e *Entry) Cached() *conn.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mu.session
}

// release drops the cached session and closes its idle connections.
// Sessions established afterwards are not cached in the entry.
func (e *Entry) release() {
	e.mu.Lock()
	s := e.mu.session
	e.mu.session = nil
	e.mu.released = true
	e.mu.Unlock()

	if s != nil {
		s.Close()
	}
}
