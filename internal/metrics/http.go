package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_http_requests_total",
		Help: "HTTP requests by route pattern, method and status",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camwatch_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds (streams run until closed)",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000, 300000},
	}, []string{"route"})
)

func RecordHTTPRequest(route, method string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(float64(d.Milliseconds()))
}
