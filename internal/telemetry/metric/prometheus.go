// Package metric provides Prometheus metrics for Cardinal.
//
// It exposes metrics in Prometheus format for monitoring connection
// counts, command rates, and keyspace size.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Command metrics
	CommandsTotal *prometheus.CounterVec
	CommandErrors prometheus.Counter

	// Keyspace metrics
	KeysLoaded prometheus.Gauge
}

// NewRegistry creates a metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cardinal_connections_active",
			Help: "Number of currently open client connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardinal_connections_total",
			Help: "Total number of accepted client connections.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardinal_commands_total",
			Help: "Total number of commands processed, by command name.",
		}, []string{"command"}),
		CommandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardinal_command_errors_total",
			Help: "Total number of commands that produced an error reply.",
		}),
		KeysLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cardinal_snapshot_keys_loaded",
			Help: "Number of keys loaded from the snapshot at startup.",
		}),
	}

	reg.MustRegister(
		r.ConnectionsActive,
		r.ConnectionsTotal,
		r.CommandsTotal,
		r.CommandErrors,
		r.KeysLoaded,
		collectors.NewGoCollector(),
	)

	return r
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
