package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "repobuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildDuration  *prom.HistogramVec
	buildVerdicts  *prom.CounterVec
	attempts       *prom.CounterVec
	cacheResults   *prom.CounterVec
	activeBuilds   prom.Gauge
	queueDepth     prom.Gauge
	stagingRetries *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of repository build requests by verdict",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"verdict"}),
		buildVerdicts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_verdicts_total",
			Help:      "Build requests by final verdict",
		}, []string{"verdict"}),
		attempts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_outcomes_total",
			Help:      "Descriptor attempts by ecosystem and outcome",
		}, []string{"ecosystem", "outcome"}),
		cacheResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_results_total",
			Help:      "Cache lookups by tier and result",
		}, []string{"tier", "result"}),
		activeBuilds: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_builds",
			Help:      "Builds currently holding an admission slot",
		}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Candidates waiting in the build queue",
		}),
		stagingRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "staging_retries_total",
			Help:      "Staging retries after transient failures",
		}, []string{"stager"}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildVerdicts, pr.attempts, pr.cacheResults,
		pr.activeBuilds, pr.queueDepth, pr.stagingRetries)
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(verdict string, d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.WithLabelValues(verdict).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildVerdict(verdict string) {
	if p == nil {
		return
	}
	p.buildVerdicts.WithLabelValues(verdict).Inc()
}

func (p *PrometheusRecorder) IncAttemptOutcome(ecosystem, outcome string) {
	if p == nil {
		return
	}
	p.attempts.WithLabelValues(ecosystem, outcome).Inc()
}

func (p *PrometheusRecorder) IncCacheResult(tier string, result ResultLabel) {
	if p == nil {
		return
	}
	p.cacheResults.WithLabelValues(tier, string(result)).Inc()
}

func (p *PrometheusRecorder) AddActiveBuilds(delta int) {
	if p == nil {
		return
	}
	p.activeBuilds.Add(float64(delta))
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) IncStagingRetry(stager string) {
	if p == nil {
		return
	}
	p.stagingRetries.WithLabelValues(stager).Inc()
}
