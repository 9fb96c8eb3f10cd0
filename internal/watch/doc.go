// Package watch implements the long-running mode: rebuild all candidates when
// the candidates file changes, evict the cache on a schedule, and serve
// Prometheus metrics until the context ends.
package watch
