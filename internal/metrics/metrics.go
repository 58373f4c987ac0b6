// Package metrics exposes the Prometheus gauges and counters the
// orchestrator and venue clients record against during a run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the scanner records against.
type Metrics struct {
	RuleQueueDropsTotal  prometheus.Counter
	BreakerStateGauge    *prometheus.GaugeVec
	TickDurationSeconds  *prometheus.HistogramVec
	MarketsScoredTotal   prometheus.Counter
	MarketsSkippedTotal  prometheus.Counter
}

// New creates and registers all collectors against the default registry.
func New() *Metrics {
	return &Metrics{
		RuleQueueDropsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "endgamesweep_rule_queue_drops_total",
			Help: "Rule-fetch requests dropped because the bounded queue was full.",
		}),
		BreakerStateGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "endgamesweep_breaker_state",
			Help: "Circuit breaker state per venue (0=closed, 1=half-open, 2=open).",
		}, []string{"venue"}),
		TickDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "endgamesweep_tick_duration_seconds",
			Help:    "Duration of a completed tick by loop name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
		MarketsScoredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "endgamesweep_markets_scored_total",
			Help: "Cumulative count of markets that produced a score and recommendation.",
		}),
		MarketsSkippedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "endgamesweep_markets_skipped_total",
			Help: "Cumulative count of markets skipped during scoring (ineligible or non-finite result).",
		}),
	}
}

// Handler returns the HTTP handler that serves the Prometheus exposition
// format at the configured path.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
