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
	"context"
	"fmt"
	"os"
	"time"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	ctrlzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
)

const defaultMetricsPort = "8080"

// setupFunc registers one reconciler against mgr. Each subcommand supplies
// its own, so a manage-reservations process never even watches Providers.
type setupFunc func(mgr ctrl.Manager, metrics *vpnutil.ControllerMetrics) error

// runReconciler builds a scheme holding the client-go and vpn.beebs.dev
// types, constructs a controller-runtime manager with its built-in metrics
// server disabled (this process serves its own, on --metrics-port, the same
// way the teacher's operator command does), wires setup against it, and
// blocks until either the manager or the metrics server stops.
func runReconciler(cmd *cobra.Command, tag string, setup setupFunc) error {
	if development {
		ctrl.SetLogger(ctrlzap.New(ctrlzap.UseDevMode(true)))
	} else {
		ctrl.SetLogger(ctrlzap.New())
	}
	log := ctrl.Log.WithName(tag)

	if prefix, _ := cmd.Flags().GetString("metrics-prefix"); prefix != "" {
		os.Setenv("METRICS_PREFIX", prefix)
	}
	metricsPort, err := cmd.Flags().GetString("metrics-port")
	if err != nil {
		return fmt.Errorf("reading metrics-port flag: %w", err)
	}
	if !cmd.Flags().Changed("metrics-port") {
		if port := os.Getenv("METRICS_PORT"); port != "" {
			metricsPort = port
		}
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return fmt.Errorf("add client-go scheme: %w", err)
	}
	if err := vpnv1.AddToScheme(scheme); err != nil {
		return fmt.Errorf("add vpn.beebs.dev scheme: %w", err)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme: scheme,
		// Metrics are served explicitly below, not through the manager.
		Metrics: metricsserver.Options{BindAddress: "0"},
	})
	if err != nil {
		return fmt.Errorf("create controller manager: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics := vpnutil.NewControllerMetrics(registry, tag)

	if err := setup(mgr, metrics); err != nil {
		return fmt.Errorf("setting up %s controller: %w", tag, err)
	}

	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return mgr.Start(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		addr := ":" + metricsPort
		server := vpnutil.NewMetricsServer(addr, registry)
		g.Add(func() error {
			log.Info("serving metrics", "addr", addr)
			return server.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	return g.Run()
}
