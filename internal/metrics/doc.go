// Package metrics exposes Prometheus collectors for sync passes, submission
// outcomes, and queue depth.
package metrics
