// Package metrics exposes the pipeline's Prometheus instrumentation:
// poll latency, classification/action outcome counters, and cache
// hit/miss counters plus a cache size gauge, re-themed from the reference codebase's credential
// metrics onto this domain's own label set.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dlqrecover_monitor_poll_duration_seconds",
			Help:    "Duration of a single queue poll",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"queue"},
	)

	MessagesEnrichedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlqrecover_monitor_messages_enriched_total",
			Help: "Total enriched messages published by the Monitor",
		},
		[]string{"queue"},
	)

	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlqrecover_analyzer_classifications_total",
			Help: "Total classifications produced, by category and model tag",
		},
		[]string{"category", "model_tag"},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlqrecover_analyzer_cache_hits_total",
			Help: "Total semantic-cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlqrecover_analyzer_cache_misses_total",
			Help: "Total semantic-cache misses",
		},
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlqrecover_analyzer_cache_size",
			Help: "Current number of entries in the semantic cache",
		},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlqrecover_executor_actions_total",
			Help: "Total actions dispatched by the Executor, by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	RetryDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dlqrecover_executor_retry_delay_seconds",
			Help:    "Computed retry delay for replayed messages",
			Buckets: []float64{30, 60, 120, 240, 480, 900},
		},
		[]string{"queue"},
	)

	LedgerHardCapHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlqrecover_monitor_ledger_hard_cap_hits_total",
			Help: "Total messages dropped by the Monitor for exceeding the retry hard cap",
		},
		[]string{"queue"},
	)
)

// Metrics wraps the package-level collectors behind an enabled flag, the
// way the reference codebase's own Metrics type gates recording.
type Metrics struct {
	enabled bool
}

// New builds a Metrics recorder. When disabled, every method is a no-op —
// collectors stay registered (so /metrics scrapes cleanly) but unused.
func New(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

func (m *Metrics) RecordPoll(queue string, d time.Duration) {
	if !m.enabled {
		return
	}
	PollDuration.WithLabelValues(queue).Observe(d.Seconds())
}

func (m *Metrics) RecordEnriched(queue string) {
	if !m.enabled {
		return
	}
	MessagesEnrichedTotal.WithLabelValues(queue).Inc()
}

func (m *Metrics) RecordClassification(category, modelTag string) {
	if !m.enabled {
		return
	}
	ClassificationsTotal.WithLabelValues(category, modelTag).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if !m.enabled {
		return
	}
	if hit {
		CacheHitsTotal.Inc()
	} else {
		CacheMissesTotal.Inc()
	}
}

func (m *Metrics) SetCacheSize(size int) {
	if !m.enabled {
		return
	}
	CacheSize.Set(float64(size))
}

func (m *Metrics) RecordAction(action, outcome string) {
	if !m.enabled {
		return
	}
	ActionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) RecordRetryDelay(queue string, delaySeconds int) {
	if !m.enabled {
		return
	}
	RetryDelaySeconds.WithLabelValues(queue).Observe(float64(delaySeconds))
}

func (m *Metrics) RecordLedgerHardCapHit(queue string) {
	if !m.enabled {
		return
	}
	LedgerHardCapHitsTotal.WithLabelValues(queue).Inc()
}
