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
	"encoding/json"
	"io"
	"sync"

	"github.com/cockroachlabs/pds-client/internal/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Command performs one-off lookups from the command line.
func Command() *cobra.Command {
	return command(NewClient())
}

func command(client *Client) *cobra.Command {
	opts := &config.Options{}
	var environment, format string
	c := &cobra.Command{
		Use:   "lookup <level> [<level> ...]",
		Short: "look up hiera data for one or more levels",
		Args:  cobra.MinimumNArgs(1),
		Example: `
Levels are looked up concurrently, sharing a single PDS session.

pds-client lookup --servers https://pds.example.com --token $TOKEN common nodes/web01
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return errors.Errorf("unknown output format %q", format)
			}

			var mu sync.Mutex
			found := make(map[string]Result, len(args))

			grp, ctx := errgroup.WithContext(cmd.Context())
			for _, level := range args {
				level := level
				grp.Go(func() error {
					o := *opts
					o.Level = level
					host := &LogContext{Entry: log.WithField("level", level)}

					data, err := client.DataHash(ctx, host, environment, &o)
					if err != nil {
						return err
					}
					if host.IsNotFound() {
						log.WithField("level", level).Warn("no PDS configuration found, skipping")
						return nil
					}
					mu.Lock()
					found[level] = data
					mu.Unlock()
					return nil
				})
			}
			if err := grp.Wait(); err != nil {
				return err
			}

			// A single level prints its data directly.
			var out interface{} = found
			if len(args) == 1 {
				data, ok := found[args[0]]
				if !ok {
					return nil
				}
				out = data
			}
			return write(cmd.OutOrStdout(), format, out)
		},
	}
	opts.Bind(c.Flags())
	c.Flags().StringVar(&environment, "environment", "production",
		"the environment under which the PDS session is cached")
	c.Flags().StringVarP(&format, "output", "o", "json", "the output format: json or yaml")
	return c
}

func write(w io.Writer, format string, data interface{}) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(data); err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(enc.Close())
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.WithStack(enc.Encode(data))
	}
}
