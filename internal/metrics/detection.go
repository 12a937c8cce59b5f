package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_detection_checks_total",
		Help: "Detection checks by camera and outcome",
	}, []string{"camera", "outcome"}) // present, absent, detector_error, capture_error

	DetectorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camwatch_detector_latency_ms",
		Help:    "Detector call latency in milliseconds",
		Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
	}, []string{"backend"})

	PersonPresent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camwatch_person_present",
		Help: "1 while a camera is in the present state",
	}, []string{"camera"})

	EvidenceSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_evidence_saved_total",
		Help: "Evidence records written by result",
	}, []string{"result"}) // ok, error

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_events_published_total",
		Help: "Presence events handed to sinks by sink and result",
	}, []string{"sink", "result"})
)

func RecordCheck(camera, outcome string) {
	DetectionChecksTotal.WithLabelValues(camera, outcome).Inc()
}

func RecordDetectorLatency(backend string, d time.Duration) {
	DetectorLatency.WithLabelValues(backend).Observe(float64(d.Milliseconds()))
}

func SetPresent(camera string, present bool) {
	if present {
		PersonPresent.WithLabelValues(camera).Set(1)
	} else {
		PersonPresent.WithLabelValues(camera).Set(0)
	}
}

func RecordEvidence(result string) {
	EvidenceSavedTotal.WithLabelValues(result).Inc()
}

func RecordEventPublish(sink, result string) {
	EventsPublishedTotal.WithLabelValues(sink, result).Inc()
}
