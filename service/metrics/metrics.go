package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "im_gateway_connections",
			Help: "Live connections on this node",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "im_gateway_online_users",
			Help: "Identities with at least one live connection on this node",
		},
	)

	ForcedDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "im_gateway_forced_disconnects_total",
			Help: "Connections closed by the liveness sweep",
		},
	)

	Sweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "im_gateway_liveness_sweeps_total",
			Help: "Liveness sweeps run",
		},
	)

	// Fan-out metrics
	EmittedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_gateway_emitted_events_total",
			Help: "Frames written to sockets, by event name",
		},
		[]string{"event"},
	)

	FallbackEmits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_gateway_fallback_emits_total",
			Help: "Emissions delivered per connection because the room path failed",
		},
		[]string{"event"},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_gateway_inbound_events_total",
			Help: "Client events received, by event name and outcome",
		},
		[]string{"event", "outcome"},
	)

	// Bus metrics
	BusEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_gateway_bus_events_total",
			Help: "Domain bus events consumed, by event name and outcome",
		},
		[]string{"event", "outcome"},
	)

	LookupLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "im_gateway_lookup_latency_seconds",
			Help:    "Persistence lookup latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)
)

// Outcome returns the outcome label for err.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler exposes the default registry for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
