// Package feedback implements the orchestrator's Recorder: bounded
// in-process history per pipeline stage (success/failure counts, latency
// samples, classified-error breakdown) plus the Prometheus vectors
// internal/metrics.Collector exposes for the same events, so the same
// numbers are both queryable in-process and scrapeable.
//
// Grounded on cache.LRUCache for the bounded-ring idiom (fixed-capacity,
// mutex-protected, oldest-entry eviction) and on internal/metrics.Collector
// for the Prometheus half. Recording is best-effort: a panic or a nil
// Collector never propagates into the orchestrator's call path.
package feedback
