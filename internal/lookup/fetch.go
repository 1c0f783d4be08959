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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/cockroachlabs/pds-client/internal/conn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DataPath is the PDS endpoint that serves hiera data.
const DataPath = "/v1/hiera-data"

// Result maps hiera keys to their values.
type Result map[string]interface{}

// record is a single element of the hiera-data response.
type record struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Fetch retrieves the data for a level over the session. It does not
// retry, and a failure does not affect the session.
func Fetch(ctx context.Context, sess *conn.Session, level, token string) (Result, error) {
	reqErr := func(status int, body string, cause error) error {
		return &RequestError{
			Server: sess.Address(),
			Level:  level,
			Status: status,
			Body:   body,
			cause:  cause,
		}
	}

	u := sess.URL(DataPath, url.Values{"level": {level}})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, reqErr(0, "", errors.Wrap(err, "could not construct request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := sess.Do(req)
	if err != nil {
		return nil, reqErr(0, "", errors.WithStack(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, reqErr(resp.StatusCode, "", errors.Wrap(err, "could not read response"))
	}
	log.WithFields(log.Fields{
		"level":  level,
		"status": resp.StatusCode,
		"url":    u,
	}).Trace("fetched hiera data")

	if resp.StatusCode != http.StatusOK {
		return nil, reqErr(resp.StatusCode, string(body), nil)
	}

	var records []record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, reqErr(resp.StatusCode, string(body), errors.Wrap(err, "could not decode hiera data"))
	}

	// Later duplicates overwrite earlier keys.
	ret := make(Result, len(records))
	for _, r := range records {
		ret[r.Key] = r.Value
	}
	return ret, nil
}
