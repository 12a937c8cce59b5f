package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CamerasDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camwatch_cameras_discovered",
		Help: "Cameras present in the latest discovery snapshot",
	})

	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camwatch_discovery_duration_seconds",
		Help:    "Wall time of a full port-range scan",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	EndpointProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_endpoint_probes_total",
		Help: "Endpoint probes during discovery by result",
	}, []string{"result"}) // ok, closed, error, bad_status
)

func SetCamerasDiscovered(n int) {
	CamerasDiscovered.Set(float64(n))
}

func RecordDiscoveryDuration(d time.Duration) {
	DiscoveryDuration.Observe(d.Seconds())
}

func RecordProbe(result string) {
	EndpointProbesTotal.WithLabelValues(result).Inc()
}
