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

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachlabs/pds-client/internal/conn"
	"github.com/cockroachlabs/pds-client/internal/lookup"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LookupPath is the endpoint that serves lookups.
const LookupPath = "/v1/lookup"

// DefaultEnvironment is the scope used when a request does not name
// an environment.
const DefaultEnvironment = "production"

// handleLookup serves GET /v1/lookup?level=<level>&environment=<env>.
// The environment selects the session cache scope.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("only GET is supported"))
		return
	}
	level := r.URL.Query().Get("level")
	if level == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("a level parameter is required"))
		return
	}
	env := r.URL.Query().Get("environment")
	if env == "" {
		env = DefaultEnvironment
	}

	s.activeLookups.Hold()
	activeLookups.Inc()
	defer func() {
		activeLookups.Dec()
		s.activeLookups.Release()
	}()

	opts := s.cfg.Lookup
	opts.Level = level
	host := &lookup.LogContext{Entry: log.WithFields(log.Fields{
		"environment": env,
		"level":       level,
	})}

	data, err := s.client.DataHash(r.Context(), host, env, &opts)
	if err != nil {
		log.WithError(err).WithField("level", level).Warn("lookup failed")
		writeJSON(w, statusFor(err), errorBody(err.Error()))
		return
	}
	if host.IsNotFound() {
		writeJSON(w, http.StatusNotFound, errorBody("no PDS configuration available"))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// statusFor maps lookup failures to response codes. Configuration
// problems are internal errors.
func statusFor(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	if found := (*conn.Error)(nil); errors.As(err, &found) {
		return http.StatusBadGateway
	}
	if found := (*lookup.RequestError)(nil); errors.As(err, &found) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Debug("could not write response")
	}
}
