// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow provides the per-stage circuit breaker shared
infrastructure that package orchestrator builds on.

# Overview

CircuitBreaker and CircuitBreakerRegistry track per-identifier failure
streaks (one identifier per pipeline stage name), tripping Open once a
stage's consecutive failures reach its threshold and, after the timeout,
admitting a bounded number of HalfOpen probes before deciding whether to
Close again or return to Open. This
is the only piece of the original generic workflow-engine surface this
module still needs: the query pipeline itself is a fixed, typed sequence
of stages (see package orchestrator), not a general DAG/step-chain
executor, so no Runnable/Step/ChainWorkflow abstraction belongs here.

# Core types

  - CircuitBreaker / CircuitBreakerRegistry — per-identifier Closed/Open/HalfOpen state
*/
package workflow
