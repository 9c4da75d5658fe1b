package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeCommitted        = "committed"
	outcomeDegraded         = "degraded"
	outcomeGenerationFailed = "generation_failed"
	outcomeParseError       = "parse_error"
	outcomeConflict         = "conflict"
	outcomeCancelled        = "cancelled"
	outcomeError            = "error"
)

// Metrics holds the turn pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	turns             *prometheus.CounterVec
	generationSeconds prometheus.Histogram
	truncatedContexts prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querry",
			Name:      "turns_total",
			Help:      "Chat turns by terminal outcome.",
		}, []string{"outcome"}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "querry",
			Name:      "generation_seconds",
			Help:      "Latency of model generation calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		truncatedContexts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "querry",
			Name:      "grounding_truncated_total",
			Help:      "Turns whose grounding context was cut to fit the budget.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.turns, m.generationSeconds, m.truncatedContexts)
	}
	return m
}

func (m *Metrics) observeTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.generationSeconds.Observe(d.Seconds())
}

func (m *Metrics) observeTruncation() {
	if m == nil {
		return
	}
	m.truncatedContexts.Inc()
}
