package metrics

import "time"

// ResultLabel enumerates cache lookup results for counters.
type ResultLabel string

const (
	ResultHit   ResultLabel = "hit"
	ResultMiss  ResultLabel = "miss"
	ResultError ResultLabel = "error"
)

// Cache tiers.
const (
	TierMemory = "memory"
	TierDisk   = "disk"
)

// Recorder defines observability hooks for builds, attempts, and the cache.
// Labels are plain strings so that recording packages need not import each other.
type Recorder interface {
	ObserveBuildDuration(verdict string, d time.Duration)
	IncBuildVerdict(verdict string)
	IncAttemptOutcome(ecosystem, outcome string)
	IncCacheResult(tier string, result ResultLabel)
	AddActiveBuilds(delta int)
	SetQueueDepth(n int)
	IncStagingRetry(stager string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildVerdict(string)                     {}
func (NoopRecorder) IncAttemptOutcome(string, string)           {}
func (NoopRecorder) IncCacheResult(string, ResultLabel)         {}
func (NoopRecorder) AddActiveBuilds(int)                        {}
func (NoopRecorder) SetQueueDepth(int)                          {}
func (NoopRecorder) IncStagingRetry(string)                     {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
