// Package metrics exposes process counters and gauges for AIT processing,
// JSON-RPC traffic, and WebSocket session churn, scraped over the /metrics
// endpoint registered by internal/httpapi.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AITEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_ait_events_total",
			Help: "Total AIT decode events by source (binary, xml) and outcome",
		},
		[]string{"source", "outcome"},
	)

	AppTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_app_transitions_total",
			Help: "Total Application Manager lifecycle transitions by event",
		},
		[]string{"event"},
	)

	RPCFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_rpc_frames_total",
			Help: "Total JSON-RPC WebSocket frames handled by outcome",
		},
		[]string{"outcome"},
	)

	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_ws_connections_active",
			Help: "Currently admitted WebSocket sessions",
		},
	)

	WSConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orb_ws_connections_total",
			Help: "Total WebSocket sessions admitted since startup",
		},
	)
)

// Handler returns the HTTP handler that serves the default registry in the
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
