// Package observability provides prometheus metrics for the transcriptor service.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	SessionsDeleted   prometheus.Counter

	CodesDetected     prometheus.Counter
	DetectionFailures prometheus.Counter

	UploadBytes           prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	HTTPRequestDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new instance of Metrics with all collectors registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_sessions_completed_total",
			Help: "Total number of sessions that completed transcription",
		}),
		SessionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_sessions_failed_total",
			Help: "Total number of sessions that ended in error",
		}),
		SessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_sessions_deleted_total",
			Help: "Total number of sessions deleted",
		}),
		CodesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_codes_detected_total",
			Help: "Total number of participation codes detected",
		}),
		DetectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_detection_failures_total",
			Help: "Total number of failed code detection runs",
		}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_upload_bytes_total",
			Help: "Total bytes of uploaded media accepted",
		}),
		TranscriptionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriptor_transcription_audio_seconds",
			Help:    "Audio duration of completed transcriptions in seconds",
			Buckets: prometheus.ExponentialBuckets(60, 2, 10),
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcriptor_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	collectors := []prometheus.Collector{
		m.SessionsCreated, m.SessionsCompleted, m.SessionsFailed, m.SessionsDeleted,
		m.CodesDetected, m.DetectionFailures,
		m.UploadBytes, m.TranscriptionDuration, m.HTTPRequestDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric collector: %w", err)
		}
	}

	return m, nil
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
