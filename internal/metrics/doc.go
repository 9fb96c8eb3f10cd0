// Package metrics records build, attempt, and cache metrics for repobuilder.
//
// Components receive a Recorder through a WithRecorder option and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	coord := coordinator.New(cfg, coordinator.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder forwards to client_golang collectors registered on the
// provided registry, and HTTPHandler serves that registry for scraping. Watch
// mode is the only long-running command and the only one that exposes it.
package metrics
