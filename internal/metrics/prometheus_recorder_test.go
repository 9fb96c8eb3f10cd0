package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveBuildDuration("succeeded", 1500*time.Millisecond)
	pr.IncBuildVerdict("succeeded")
	pr.IncAttemptOutcome("go", "build_succeeded")
	pr.IncAttemptOutcome("node", "dependency_error")
	pr.IncCacheResult(TierMemory, ResultHit)
	pr.IncCacheResult(TierDisk, ResultMiss)
	pr.IncCacheResult(TierDisk, ResultMiss)
	pr.AddActiveBuilds(2)
	pr.AddActiveBuilds(-1)
	pr.SetQueueDepth(4)
	pr.IncStagingRetry("archive")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 7)

	assert.InDelta(t, 1, value(t, mfs, "repobuilder_build_verdicts_total", "succeeded"), 0)
	assert.InDelta(t, 2, value(t, mfs, "repobuilder_cache_results_total", string(ResultMiss), TierDisk), 0)
	assert.InDelta(t, 1, value(t, mfs, "repobuilder_active_builds"), 0)
	assert.InDelta(t, 4, value(t, mfs, "repobuilder_queue_depth"), 0)
}

// value returns the counter or gauge value of the series whose label values
// equal labels, given in label-name order.
func value(t *testing.T, mfs []*dto.MetricFamily, name string, labels ...string) float64 {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) != len(labels) {
				continue
			}
			for i, lp := range m.GetLabel() {
				if lp.GetValue() != labels[i] {
					continue series
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncBuildVerdict("all_failed")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `repobuilder_build_verdicts_total{verdict="all_failed"} 1`)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = OrNoop(nil)
	assert.Equal(t, NoopRecorder{}, r)
	r.IncCacheResult(TierMemory, ResultError)
	r.AddActiveBuilds(1)

	var pr *PrometheusRecorder
	assert.NotPanics(t, func() { pr.IncBuildVerdict("x") })
}
