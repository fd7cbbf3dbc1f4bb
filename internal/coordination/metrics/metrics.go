// Package metrics exposes the coordination core's counters and gauge on the
// primary's loopback HTTP surface. Grounded on the port-allocation
// operator's own metrics package in this corpus (promauto.NewCounterVec /
// NewGaugeVec, one package-level var block, served via promhttp.Handler()).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Role gauge values, matching coordinator.Role's ordering.
const (
	RoleUnknown   = 0
	RolePrimary   = 1
	RoleSecondary = 2
)

var (
	// RoleTransitionsTotal counts Role Transition Events by reason.
	RoleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpkit_role_transitions_total",
			Help: "Total number of role transition events by reason",
		},
		[]string{"reason"},
	)

	// PortEvictionsTotal counts Port Manager eviction passes that observed
	// at least one holder.
	PortEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcpkit_port_evictions_total",
			Help: "Total number of port eviction passes that found a holder",
		},
	)

	// ProxyUpstreamErrorsTotal counts Reverse Proxy 502s.
	ProxyUpstreamErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcpkit_proxy_upstream_errors_total",
			Help: "Total number of reverse proxy upstream failures",
		},
	)

	// InstanceRole reports this process's current role: 0=unknown,
	// 1=primary, 2=secondary.
	InstanceRole = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpkit_instance_role",
			Help: "Current role of this instance (0=unknown, 1=primary, 2=secondary)",
		},
	)
)

// Handler returns the Prometheus exposition handler for /__metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
