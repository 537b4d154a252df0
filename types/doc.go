// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types holds the shared type contracts every other package in this
module builds on: the query-engine domain model (WorkflowState, Tenant,
DataSource, QueryResult, ...), the chat/tool wire types the LLM gateway
speaks, the structured error taxonomies, and context-propagation helpers.
It has no internal dependencies, so it is safe for every layer — agents,
orchestrator, api, executor — to import without creating a cycle.

# Core types

  - WorkflowState, Stage, Tenant, DataSource, QueryResult — the query pipeline's domain model
  - Message, ToolCall, ToolSchema, ToolResult — the chat/tool-calling wire contract
  - Error / ErrorCode — general HTTP-facing structured error type
  - ClassifiedError / ErrorCategory / Severity / Recoverability — the recovery-planning taxonomy
  - JSONSchema — JSON Schema definitions and builders (NewObjectSchema, ...)
  - Tokenizer / TokenUsage / EstimateTokenizer — token counting contracts

# Context propagation

WithTraceID / WithTenantID / WithUserID / WithRunID / WithLLMModel /
WithPromptBundleVersion attach request-scoped identifiers to a
context.Context; their paired accessors retrieve them.
*/
package types
