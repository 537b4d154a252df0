// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package metrics provides the query engine's Prometheus instrumentation,
covering the four surfaces worth alerting on: HTTP, the LLM gateway, the
orchestrator's pipeline stages, and the layered cache plus SQL executor.

# Overview

Collector registers every metric once through promauto, so callers never
touch a prometheus.Registry directly. Metrics are namespaced per process
and labeled by the dimensions operators actually query on (method/path,
provider/model, stage, cache namespace, data source), not by
high-cardinality identifiers like request IDs.

# Core type

  - Collector — holds the Counter/Histogram vectors and the record
    methods every other package calls into.

# Recorded surfaces

  - HTTP: request count, duration, request/response size, labeled by
    method/path/status class (2xx/3xx/4xx/5xx).
  - LLM gateway: request count and duration by provider/model/status,
    plus prompt/completion token counts.
  - Orchestrator pipeline: stage execution count and duration by
    stage/status, recorded once per stage run by package feedback.
  - Cache: hit/miss counters by cache namespace, recorded by package
    cache's layered lookup.
  - Executor: SQL query duration by data source and status.
*/
package metrics
