package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections is the number of live relay sessions
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "connections",
		Help:      "Live websocket sessions.",
	})

	// Rooms is the number of non-empty rooms
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "rooms",
		Help:      "Rooms with at least one member.",
	})

	// Frames counts inbound frames by outcome type
	Frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "frames_total",
		Help:      "Inbound frames by decoded type.",
	}, []string{"type"})

	// Rejections counts refused joins and frames by reason
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "rejections_total",
		Help:      "Refused admissions and frames.",
	}, []string{"reason"})

	// DroppedFrames counts sends that failed for one recipient
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "dropped_frames_total",
		Help:      "Outbound frames dropped for a single recipient.",
	})

	// ModerationActions counts admin operations
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "moderation_actions_total",
		Help:      "Moderation operations performed.",
	}, []string{"action"})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
