// Package metrics holds the Prometheus collectors shared by the web and bot
// binaries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tryon"

const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusSuperseded = "superseded"
)

var (
	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of image model API calls in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"op", "model"},
	)

	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of image model API calls",
		},
		[]string{"op", "model", "status"},
	)

	// effectsTotal counts background removal and analysis runs. Superseded
	// runs finished after their input changed and were dropped.
	effectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effects_total",
			Help:      "Total number of background effects by outcome",
		},
		[]string{"effect", "status"},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of try-on generations",
		},
		[]string{"status"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held in memory",
		},
	)

	allMetrics = []prometheus.Collector{
		providerRequestDuration,
		providerRequestsTotal,
		effectsTotal,
		generationsTotal,
		sessionsActive,
	}
)

// NewRegistry returns a registry with every collector of this package plus
// the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveProviderCall records one generateContent round trip.
func ObserveProviderCall(op, model string, d time.Duration, err error) {
	providerRequestDuration.WithLabelValues(op, model).Observe(d.Seconds())
	providerRequestsTotal.WithLabelValues(op, model, status(err)).Inc()
}

func RecordEffect(effect, status string) {
	effectsTotal.WithLabelValues(effect, status).Inc()
}

func RecordGeneration(err error) {
	generationsTotal.WithLabelValues(status(err)).Inc()
}

func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
