// Package metric provides Prometheus metrics for Cardinal.
//
// This package implements metrics collection and exposition.
//
// Metrics include:
//
//   - Connection gauges and counters
//   - Per-command counters
//   - Command error counters
//   - Snapshot key counts
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
