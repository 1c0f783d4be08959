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

// Package scope caches PDS sessions and configuration reads for the
// lifetime of a host-defined scope, such as a Puppet environment.
package scope

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// Registry maps scope identities to their cache entries. Entries are
// created on first use and are only discarded by Reset.
type Registry struct {
	mu struct {
		sync.Mutex
		entries map[interface{}]*Entry
	}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.mu.entries = make(map[interface{}]*Entry)
	return r
}

// CheckID returns an error if id cannot identify a scope. An id must
// be usable as a map key, so slices, maps and functions are rejected,
// as are comparable types that hold one of those in an interface field.
func CheckID(id interface{}) (err error) {
	if id == nil {
		return nil
	}
	if !reflect.TypeOf(id).Comparable() {
		return errors.Errorf("scope id of type %T is not comparable", id)
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("scope id of type %T is not comparable: %v", id, r)
		}
	}()
	_ = map[interface{}]struct{}{id: {}}
	return nil
}

// Entry returns the cache entry for the scope, creating it if needed.
// The id must pass CheckID, otherwise Entry panics. Two ids share an
// entry if and only if they are equal.
func (r *Registry) Entry(id interface{}) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.mu.entries[id]; ok {
		return e
	}
	e := newEntry(id)
	r.mu.entries[id] = e
	scopeCount.Set(float64(len(r.mu.entries)))
	return e
}

// Len returns the number of scopes with an entry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mu.entries)
}

// Reset discards every entry, so that the next lookup in any scope
// rereads its configuration and selects a server again. Idle
// connections of the discarded sessions are closed.
func (r *Registry) Reset() {
	r.mu.Lock()
	old := r.mu.entries
	r.mu.entries = make(map[interface{}]*Entry)
	scopeCount.Set(0)
	r.mu.Unlock()

	for _, e := range old {
		e.release()
	}
}
