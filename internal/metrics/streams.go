package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream metrics carry no camera or user labels.
var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camwatch_stream_connections_active",
		Help: "Proxied stream connections currently registered",
	})

	ConnectionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_stream_connections_closed_total",
		Help: "Stream connections torn down by reason",
	}, []string{"reason"}) // eof, stopped, swept, client_gone, error

	FramesProxiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_frames_proxied_total",
		Help: "Frames transformed and written to clients",
	})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_frames_dropped_total",
		Help: "Frames dropped before reaching a client",
	}, []string{"reason"}) // codec

	PlaceholdersServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_placeholders_served_total",
		Help: "Offline placeholders served instead of live content",
	}, []string{"endpoint"})
)

func SetActiveConnections(n int) {
	ActiveConnections.Set(float64(n))
}

func RecordConnectionClosed(reason string) {
	ConnectionsClosedTotal.WithLabelValues(reason).Inc()
}

func RecordFrameProxied() {
	FramesProxiedTotal.Inc()
}

func RecordFrameDrop(reason string) {
	FramesDroppedTotal.WithLabelValues(reason).Inc()
}

func RecordPlaceholder(endpoint string) {
	PlaceholdersServedTotal.WithLabelValues(endpoint).Inc()
}
