package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signaldesk",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of signal API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signaldesk",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by signal API endpoint",
		},
		[]string{"endpoint"},
	)

	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signaldesk",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected alert stream clients",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, WebSocketClients)
	})
}

// Observe records how long endpoint took since start.
func Observe(endpoint string, start time.Time) {
	APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Fail counts one failed call of endpoint.
func Fail(endpoint string) {
	APIErrors.WithLabelValues(endpoint).Inc()
}
