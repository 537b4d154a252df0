package types

import "time"

// Stage identifies a step in the query-analysis workflow state machine.
type Stage string

const (
	StageReceived           Stage = "received"
	StageRoutedNL2SQL       Stage = "routed_to_nl2sql"
	StageRoutedChart        Stage = "routed_to_chart"
	StageRoutedInsights     Stage = "routed_to_insights"
	StageSQLGenerated       Stage = "sql_generated"
	StageSQLValidated       Stage = "sql_validated"
	StageQueryExecuting     Stage = "query_executing"
	StageQueryExecuted      Stage = "query_executed"
	StageResultsValidated   Stage = "results_validated"
	StageChartGenerated     Stage = "chart_generated"
	StageInsightsGenerated  Stage = "insights_generated"
	StageComplete           Stage = "complete"
	StageFailed             Stage = "failed"
)

// AnalysisMode controls how thoroughly the workflow analyzes a query.
type AnalysisMode string

const (
	AnalysisStandard AnalysisMode = "standard"
	AnalysisDeep     AnalysisMode = "deep"
)

// Role is the caller's role within their tenant, used to tailor insight tone.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleManager  UserRole = "manager"
	RoleAnalyst  UserRole = "analyst"
	RoleEmployee UserRole = "employee"
	RoleViewer   UserRole = "viewer"
)

// UserRef is an opaque caller identity, resolved by an external collaborator.
type UserRef struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

// Plan is a tenant's subscription tier, determining rate/quota limits.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// Tenant carries the subscription and quota state for the caller's organization.
type Tenant struct {
	ID              string     `json:"id"`
	Plan            Plan       `json:"plan"`
	AICreditsUsed   int64      `json:"ai_credits_used"`
	AICreditsLimit  int64      `json:"ai_credits_limit"` // -1 == unlimited
	MaxProjects     int        `json:"max_projects"`
	MaxDataSources  int        `json:"max_data_sources"`
	TrialEndsAt     *time.Time `json:"trial_ends_at,omitempty"`
}

// DataSourceKind enumerates backend store kinds the executor may dispatch to.
type DataSourceKind string

const (
	KindPostgres   DataSourceKind = "postgres"
	KindMySQL      DataSourceKind = "mysql"
	KindClickHouse DataSourceKind = "clickhouse"
	KindSnowflake  DataSourceKind = "snowflake"
	KindBigQuery   DataSourceKind = "bigquery"
	KindRedshift   DataSourceKind = "redshift"
	KindDuckDB     DataSourceKind = "duckdb"
	KindSQLite     DataSourceKind = "sqlite"
	KindFile       DataSourceKind = "file"
)

// DataSource describes a queryable backend; Connection is an opaque,
// backend-specific descriptor resolved by the data-source registry collaborator.
type DataSource struct {
	ID               string         `json:"id"`
	Kind             DataSourceKind `json:"kind"`
	Dialect          string         `json:"dialect"`
	Connection       any            `json:"-"`
	SchemaFingerprint string        `json:"schema_fingerprint"`
}

// Row is a single result row keyed by column name.
type Row map[string]any

// QueryResult is the materialized outcome of executing SQL against a data source.
type QueryResult struct {
	Rows      []Row    `json:"rows"`
	RowCount  int      `json:"row_count"`
	Schema    []string `json:"schema"`
	Truncated bool     `json:"truncated"`
}

// RoutingDecision records the router agent's choice of downstream agent.
type RoutingDecision struct {
	PrimaryAgent string  `json:"primary_agent"`
	Strategy     string  `json:"strategy"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// ChartConfig is an ECharts-compatible chart specification.
type ChartConfig struct {
	ChartType string         `json:"chart_type"`
	Option    map[string]any `json:"option"`
}

// Insight is an observation surfaced from query results.
type Insight struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// Recommendation is an action surfaced from query results.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Progress reports the workflow's completion fraction to the streaming layer.
type Progress struct {
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
	Stage      Stage  `json:"stage"`
}

// ExecutionMetadata tracks timing, retry counters, and LLM token usage for a
// single workflow run.
type ExecutionMetadata struct {
	StartedAt   time.Time       `json:"started_at"`
	PerStageMs  map[Stage]int64 `json:"per_stage_ms"`
	Retries     map[Stage]int   `json:"retries"`
	TokensIn    int             `json:"tokens_in"`
	TokensOut   int             `json:"tokens_out"`
}

// ConversationMemory is an opaque reference to prior-turn context, owned and
// populated by an external collaborator; agents only read from it.
type ConversationMemory struct {
	ConversationID string   `json:"conversation_id"`
	PriorTurns     []string `json:"prior_turns,omitempty"`
}

// WorkflowState is the single mutable record threaded through every agent in
// a workflow run. Agents may only assign the fields their stage is permitted
// to write (see stageWriteAllowList in package orchestrator); every other field is
// read-only context for that agent.
type WorkflowState struct {
	RequestID      string       `json:"request_id"`
	ConversationID string       `json:"conversation_id"`
	UserRef        UserRef      `json:"user_ref"`
	Tenant         Tenant       `json:"tenant"`
	Query          string       `json:"query"`
	DataSourceID   string       `json:"data_source_id,omitempty"`
	Dialect        string       `json:"dialect,omitempty"` // resolved from the data source; empty defaults to "postgres"
	AnalysisMode   AnalysisMode `json:"analysis_mode"`

	Stage Stage `json:"stage"`

	RoutingDecision *RoutingDecision `json:"routing_decision,omitempty"`
	SQLQuery        string           `json:"sql_query,omitempty"`
	QueryResult     *QueryResult     `json:"query_result,omitempty"`
	EChartsConfig   *ChartConfig     `json:"echarts_config,omitempty"`
	Insights        []Insight        `json:"insights,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Narration       string           `json:"narration,omitempty"`

	Progress Progress `json:"progress"`

	Error           *ClassifiedError `json:"error,omitempty"`
	CriticalFailure bool             `json:"critical_failure,omitempty"`

	ExecutionMetadata ExecutionMetadata   `json:"execution_metadata"`
	Memory            *ConversationMemory `json:"-"`
}

// HasDataSource reports whether the workflow targets a concrete data source,
// as opposed to running in the conversational (no-data-source) branch.
func (s *WorkflowState) HasDataSource() bool {
	return s.DataSourceID != ""
}

// RecordStageDuration appends a per-stage timing sample.
func (s *WorkflowState) RecordStageDuration(stage Stage, ms int64) {
	if s.ExecutionMetadata.PerStageMs == nil {
		s.ExecutionMetadata.PerStageMs = make(map[Stage]int64)
	}
	s.ExecutionMetadata.PerStageMs[stage] = ms
}

// IncrRetry bumps and returns the retry count for a stage.
func (s *WorkflowState) IncrRetry(stage Stage) int {
	if s.ExecutionMetadata.Retries == nil {
		s.ExecutionMetadata.Retries = make(map[Stage]int)
	}
	s.ExecutionMetadata.Retries[stage]++
	return s.ExecutionMetadata.Retries[stage]
}

// AddTokenUsage accumulates prompt/completion token counts from an LLM call
// so the orchestrator can debit credits once the run completes.
func (s *WorkflowState) AddTokenUsage(promptTokens, completionTokens int) {
	s.ExecutionMetadata.TokensIn += promptTokens
	s.ExecutionMetadata.TokensOut += completionTokens
}
