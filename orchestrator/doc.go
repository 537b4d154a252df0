// Package orchestrator sequences the agents in package agents through the
// fixed query-analysis state machine, emitting progress frames, applying
// per-stage circuit breakers, and deciding recovery transitions for
// classified failures.
//
// This is deliberately not a generic DAG executor: the stage sequence is
// fixed and typed (*types.WorkflowState in, *types.WorkflowState out), so
// there is no node graph, no condition/loop/parallel node kinds, and no
// runtime-wired edges. It reuses workflow.CircuitBreaker/
// CircuitBreakerRegistry for per-stage breaker state, and its stage-running
// loop follows the same run-in-sequence-stop-on-first-failure idiom a
// generic step chain would, but typed to *types.WorkflowState rather than
// an `any` payload passed between opaque steps.
package orchestrator
