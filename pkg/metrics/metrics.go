// Package metrics holds the process-local Prometheus registry: connection,
// request, and backend-status counters/gauges (SPEC_FULL.md §2 Metrics
// registry, exposed at /metrics by the admin surface).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace is the prefix every metric below is registered under.
const namespace = "mcpmux"

var (
	// ConnectionsActive is the number of currently open client connections,
	// per backend endpoint.
	ConnectionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Number of currently open client connections per backend endpoint.",
	}, []string{"backend"})

	// ConnectionsRefused counts connections refused because the connection
	// semaphore was exhausted (spec.md P7 backpressure).
	ConnectionsRefused = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_refused_total",
		Help:      "Number of connections refused due to the connection semaphore being exhausted.",
	}, []string{"backend"})

	// RequestsTotal counts JSON-RPC requests routed per backend/method/outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Number of JSON-RPC requests routed, labeled by backend, method, and outcome.",
	}, []string{"backend", "method", "outcome"})

	// BackendStatus reports a backend's lifecycle status as a gauge: 1 for
	// the label matching the current status, 0 otherwise.
	BackendStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_status",
		Help:      "1 if the backend is currently in the labeled status, 0 otherwise.",
	}, []string{"backend", "status"})
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// Registry returns the process-wide prometheus.Registry with every mcpmux
// collector registered, for use by the admin surface's /metrics handler.
func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(ConnectionsActive, ConnectionsRefused, RequestsTotal, BackendStatus)
	})
	return registry
}
