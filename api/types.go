// Package api defines the wire-level request/response envelopes for the
// public query surface (C12) and the identity/tenant-resolution contracts
// its handlers depend on. Field names and JSON tags follow the same
// convention as the original service's REST responses so existing frontend
// clients decode them without translation.
package api

import "github.com/aiser/queryengine/types"

// QueryRequest is the body of POST /v1/queries and /v1/queries/stream.
type QueryRequest struct {
	Query          string             `json:"query"`
	ConversationID string             `json:"conversationId,omitempty"`
	DataSourceID   string             `json:"dataSourceId,omitempty"`
	AnalysisMode   types.AnalysisMode `json:"analysisMode,omitempty"`
}

// ExecutionMetadataView is the trimmed, wire-facing projection of
// types.ExecutionMetadata.
type ExecutionMetadataView struct {
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	Status          string      `json:"status"`
	Stage           types.Stage `json:"stage"`
}

// ProgressView mirrors types.Progress for the envelope's progress field.
type ProgressView struct {
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

// QueryResponse is the non-streaming response envelope. On failure every
// field but Success, Query, Error, and ClassifiedError is omitted.
type QueryResponse struct {
	Success bool   `json:"success"`
	Query   string `json:"query"`

	Analysis        string                  `json:"analysis,omitempty"`
	EChartsConfig   *types.ChartConfig      `json:"echarts_config,omitempty"`
	Insights        []types.Insight         `json:"insights,omitempty"`
	Recommendations []types.Recommendation  `json:"recommendations,omitempty"`
	QueryResult     *types.QueryResult      `json:"query_result,omitempty"`
	ExecutionMeta   *ExecutionMetadataView  `json:"execution_metadata,omitempty"`
	Progress        *ProgressView           `json:"progress,omitempty"`
	AIEngine        string                  `json:"ai_engine,omitempty"`

	Error           string                  `json:"error,omitempty"`
	ClassifiedError *types.ClassifiedError  `json:"classified_error,omitempty"`
}

// StreamFrame is one line-delimited JSON object emitted by
// POST /v1/queries/stream, a thin wire projection of streaming.Frame.
type StreamFrame struct {
	Seq             int64                   `json:"seq"`
	Kind            string                  `json:"kind"`
	RequestID       string                  `json:"requestId,omitempty"`
	ConversationID  string                  `json:"conversationId,omitempty"`
	Progress        *ProgressView           `json:"progress,omitempty"`
	Chart           *types.ChartConfig      `json:"chart,omitempty"`
	Insights        []types.Insight         `json:"insights,omitempty"`
	Recommendations []types.Recommendation  `json:"recommendations,omitempty"`
	Message         string                  `json:"message,omitempty"`
	ClassifiedError *types.ClassifiedError  `json:"classified_error,omitempty"`
}
