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

package vpnutil

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ControllerMetrics is the per-reconciler metric family set: one
// reconcile counter, one action counter, and read/write latency
// histograms, all labeled by the reconciled object's name and namespace
// (and, for action counters/histograms, the action taken).
type ControllerMetrics struct {
	ReconcileCounter *prometheus.CounterVec
	ActionCounter    *prometheus.CounterVec
	ReadHistogram    *prometheus.HistogramVec
	WriteHistogram   *prometheus.HistogramVec
}

// MetricsPrefix reads METRICS_PREFIX, defaulting to "vpno".
func MetricsPrefix() string {
	if p := os.Getenv("METRICS_PREFIX"); p != "" {
		return p
	}
	return "vpno"
}

// NewControllerMetrics registers and returns the metric family set for a
// single reconciler, named "{prefix}_{tag}_{metric}". Registration happens
// once, against registry, at the call site's discretion (callers are
// expected to call this once per reconciler at startup).
func NewControllerMetrics(registry *prometheus.Registry, tag string) *ControllerMetrics {
	prefix := MetricsPrefix()
	m := &ControllerMetrics{
		ReconcileCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_" + tag + "_reconcile_counter",
			Help: "Total number of reconciliations for the " + tag + " controller.",
		}, []string{"name", "namespace"}),
		ActionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_" + tag + "_action_counter",
			Help: "Total number of actions taken by the " + tag + " controller, by action.",
		}, []string{"name", "namespace", "action"}),
		ReadHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: prefix + "_" + tag + "_read_duration_seconds",
			Help: "Duration of the read phase of reconciliation, by action.",
		}, []string{"name", "namespace", "action"}),
		WriteHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: prefix + "_" + tag + "_write_duration_seconds",
			Help: "Duration of the write phase of reconciliation, by action.",
		}, []string{"name", "namespace", "action"}),
	}
	registry.MustRegister(m.ReconcileCounter, m.ActionCounter, m.ReadHistogram, m.WriteHistogram)
	return m
}

// ObserveRead records the duration of the read (determine-action) phase.
func (m *ControllerMetrics) ObserveRead(name, namespace, action string, d time.Duration) {
	m.ReadHistogram.WithLabelValues(name, namespace, action).Observe(d.Seconds())
}

// ObserveWrite records the duration of the write (apply-action) phase.
func (m *ControllerMetrics) ObserveWrite(name, namespace, action string, d time.Duration) {
	m.WriteHistogram.WithLabelValues(name, namespace, action).Observe(d.Seconds())
}

// NewMetricsServer builds (but does not start) an HTTP server exposing
// registry on /metrics. Callers that need a graceful shutdown hook (e.g. an
// oklog/run actor) should use this directly instead of Serve.
func NewMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// Serve starts a Prometheus scrape endpoint on addr using registry,
// blocking until the HTTP server exits.
func Serve(addr string, registry *prometheus.Registry) error {
	return NewMetricsServer(addr, registry).ListenAndServe()
}
