package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	evaluations    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	alerts         *prometheus.CounterVec
	notifierErrors *prometheus.CounterVec
	historyErrors  *prometheus.CounterVec
	strength       *prometheus.GaugeVec
}

// New registers the recorder on the default registry. Call it once.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg, which lets tests use a private registry.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_evaluations_total",
				Help: "Signal evaluations by market class and direction",
			},
			[]string{"market", "direction"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_evaluation_errors_total",
				Help: "Evaluation failures by kind",
			},
			[]string{"kind"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signaldesk_evaluation_duration_seconds",
				Help:    "Time spent evaluating one instrument",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"market"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_alerts_total",
				Help: "Alerts dispatched by direction",
			},
			[]string{"direction"},
		),
		notifierErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_notifier_errors_total",
				Help: "Failed alert deliveries by notifier",
			},
			[]string{"notifier"},
		),
		historyErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_history_errors_total",
				Help: "Failed history writes by sink",
			},
			[]string{"sink"},
		),
		strength: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signaldesk_signal_strength",
				Help: "Latest signal strength per instrument",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordEvaluation(market, direction string, seconds float64) {
	r.evaluations.WithLabelValues(market, direction).Inc()
	r.duration.WithLabelValues(market).Observe(seconds)
}

func (r *Recorder) RecordStrength(symbol string, strength int) {
	r.strength.WithLabelValues(symbol).Set(float64(strength))
}

// RecordError records an evaluation failure. kind is a short fixed label
// such as "invalid_snapshot" or "fetch".
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordAlert(direction string) {
	r.alerts.WithLabelValues(direction).Inc()
}

func (r *Recorder) RecordNotifierError(notifier string) {
	r.notifierErrors.WithLabelValues(notifier).Inc()
}

func (r *Recorder) RecordHistoryError(sink string) {
	r.historyErrors.WithLabelValues(sink).Inc()
}
