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

// pds-client looks up hiera data from the Puppet Data Service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachlabs/pds-client/internal/lookup"
	"github.com/cockroachlabs/pds-client/internal/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var jsonLogs bool
	var verbosity int
	root := &cobra.Command{
		Use:           "pds-client",
		Short:         "a client for the Puppet Data Service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			switch {
			case verbosity >= 2:
				log.SetLevel(log.TraceLevel)
			case verbosity == 1:
				log.SetLevel(log.DebugLevel)
			default:
				log.SetLevel(log.InfoLevel)
			}
			if jsonLogs {
				log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
			}
		},
	}
	f := root.PersistentFlags()
	f.BoolVar(&jsonLogs, "logJSON", false, "emit logs as JSON")
	f.CountVarP(&verbosity, "verbose", "v", "increase logging verbosity; -v shows lookup narration")

	root.AddCommand(lookup.Command(), server.Command())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.WithError(err).Error("exiting")
		log.Exit(1)
	}
}
