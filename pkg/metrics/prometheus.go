package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus
// metrics registered on the default registry.
type PrometheusRecorder struct {
	itemsTotal       *prometheus.CounterVec
	resolutionsTotal *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	compactionsTotal *prometheus.CounterVec
	compactedEntries *prometheus.CounterVec
	compactedTokens  *prometheus.CounterVec
	activeTokens     *prometheus.GaugeVec
	submitDuration   *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
// Register it once per process; duplicate registration panics.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		itemsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_review_items_total",
				Help: "Total review item submissions by job and routing outcome",
			},
			[]string{"job_id", "outcome"},
		),
		resolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_review_resolutions_total",
				Help: "Total review item resolutions by job and action",
			},
			[]string{"job_id", "action"},
		),
		cacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_cache_lookups_total",
				Help: "Total mapping cache lookups by result",
			},
			[]string{"result"},
		),
		compactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_compactions_total",
				Help: "Total history compactions by job",
			},
			[]string{"job_id"},
		),
		compactedEntries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_compacted_entries_total",
				Help: "Total history entries folded into summaries by job",
			},
			[]string{"job_id"},
		),
		compactedTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curator_compacted_tokens_total",
				Help: "Total tokens folded into summaries by job",
			},
			[]string{"job_id"},
		),
		activeTokens: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "curator_active_tokens",
				Help: "Current active working-memory tokens by job",
			},
			[]string{"job_id"},
		),
		submitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "curator_submit_duration_seconds",
				Help:    "Duration of review submissions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

// ObserveSubmit records one submission and its routing outcome.
func (p *PrometheusRecorder) ObserveSubmit(jobID, outcome string, duration time.Duration) {
	p.itemsTotal.WithLabelValues(jobID, outcome).Inc()
	p.submitDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveResolution records one review item resolution.
func (p *PrometheusRecorder) ObserveResolution(jobID, action string) {
	p.resolutionsTotal.WithLabelValues(jobID, action).Inc()
}

// IncCacheLookup counts a mapping cache lookup by result.
func (p *PrometheusRecorder) IncCacheLookup(result string) {
	p.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCompaction records one history compaction.
func (p *PrometheusRecorder) ObserveCompaction(jobID string, entriesFolded int, tokensRemoved int64) {
	p.compactionsTotal.WithLabelValues(jobID).Inc()
	p.compactedEntries.WithLabelValues(jobID).Add(float64(entriesFolded))
	p.compactedTokens.WithLabelValues(jobID).Add(float64(tokensRemoved))
}

// SetActiveTokens tracks a job's active working-memory size.
func (p *PrometheusRecorder) SetActiveTokens(jobID string, tokens int64) {
	p.activeTokens.WithLabelValues(jobID).Set(float64(tokens))
}
