package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scriptloop"

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	execution     prometheus.Histogram
	sessionsSaved prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome.",
		}, []string{"status"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Generate, execute, evaluate cycles by language.",
		}, []string{"language"}),
		execution: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_seconds",
			Help:      "Wall clock time of script executions.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 180},
		}),
		sessionsSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_saved_total",
			Help:      "Sessions checkpointed after exhausting their budget.",
		}),
	}
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) Attempt(language string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(language).Inc()
}

func (m *Metrics) ObserveExecution(d time.Duration) {
	if m == nil {
		return
	}
	m.execution.Observe(d.Seconds())
}

func (m *Metrics) SessionSaved() {
	if m == nil {
		return
	}
	m.sessionsSaved.Inc()
}
