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

package main

import (
	"fmt"

	"github.com/beebs-dev/vpn-operator/internal/providerctrl"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
)

func manageProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "manage-providers",
		Short: "Reconcile Provider credential validation and capacity publishing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconciler(cmd, "provider", func(mgr ctrl.Manager, metrics *vpnutil.ControllerMetrics) error {
				r := &providerctrl.Reconciler{Client: mgr.GetClient(), Metrics: metrics}
				if err := r.SetupWithManager(mgr); err != nil {
					return fmt.Errorf("setting up provider controller: %w", err)
				}
				return nil
			})
		},
	}
}
