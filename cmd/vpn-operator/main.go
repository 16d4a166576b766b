// Copyright 2024 the vpn-operator contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command vpn-operator runs one reconciler per invocation: manage-providers,
// manage-masks, manage-consumers, or manage-reservations. Running each
// reconciler as its own process (and, typically, its own Deployment) keeps a
// crash-looping Provider controller from ever correlating with a stalled
// Reservation one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var development bool

func main() {
	rootCmd := &cobra.Command{
		Use:          "vpn-operator",
		Short:        "Kubernetes operator for pooled VPN credential leasing",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVar(&development, "development", false, "use the zap development logger encoding")
	rootCmd.PersistentFlags().String("metrics-port", defaultMetricsPort, "port to serve Prometheus metrics on")
	rootCmd.PersistentFlags().String("metrics-prefix", "", "override METRICS_PREFIX for this process (defaults to vpno)")

	rootCmd.AddCommand(
		manageProvidersCommand(),
		manageMasksCommand(),
		manageConsumersCommand(),
		manageReservationsCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
