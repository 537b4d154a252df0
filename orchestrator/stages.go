package orchestrator

import (
	"context"

	"github.com/aiser/queryengine/agents"
	"github.com/aiser/queryengine/types"
)

type stageFunc func(ctx context.Context, state *types.WorkflowState, deps agents.Deps) (*types.WorkflowState, *types.ClassifiedError)

// stageDef is one step of the fixed pipeline: the agent function to call,
// the WorkflowState fields it's permitted to write, and the progress
// percentage to report once it succeeds.
type stageDef struct {
	name     string
	run      stageFunc
	allowed  map[string]bool
	progress int
}

// stageWriteAllowList documents, per stage, which WorkflowState JSON field
// (beyond "stage" and "execution_metadata", always permitted) that stage's
// agent may change. A write outside this list fails the run with a
// state_integrity error instead of silently corrupting shared state — this
// is the runtime enforcement of the allow-list types.WorkflowState's doc
// comment promises.
var stageWriteAllowList = map[string]map[string]bool{
	"route":    {"routing_decision": true},
	"nl2sql":   {"sql_query": true},
	"validate": {"sql_query": true},
	"execute":  {"query_result": true},
	"results":  {"error": true},
	"chart":    {"echarts_config": true},
	"insights": {"insights": true, "recommendations": true},
	"finalize": {"narration": true},
}

// alwaysAllowed fields are orchestrator-owned but touched by agent code:
// every agent advances Stage itself, and token accounting happens inline in
// whichever agent just called the LLM gateway.
var alwaysAllowed = map[string]bool{"stage": true, "execution_metadata": true}

const (
	stageRoute    = "route"
	stageNL2SQL   = "nl2sql"
	stageValidate = "validate"
	stageExecute  = "execute"
	stageResults  = "results"
	stageChart    = "chart"
	stageInsights = "insights"
	stageFinalize = "finalize"
)

// pipeline is the fixed happy-path sequence. The conversational branch
// (no data source attached) short-circuits from route straight to finalize;
// everything else runs in order for every data-bearing request, regardless
// of the router's primaryAgent suggestion — see the C8 design note on why
// RoutingDecision stays informational rather than branching.
var pipeline = []stageDef{
	{name: stageRoute, run: agents.Route, allowed: stageWriteAllowList[stageRoute], progress: 10},
	{name: stageNL2SQL, run: agents.GenerateSQL, allowed: stageWriteAllowList[stageNL2SQL], progress: 20},
	{name: stageValidate, run: agents.ValidateSQL, allowed: stageWriteAllowList[stageValidate], progress: 30},
	{name: stageExecute, run: agents.RunQuery, allowed: stageWriteAllowList[stageExecute], progress: 50},
	{name: stageResults, run: agents.ValidateResults, allowed: stageWriteAllowList[stageResults], progress: 60},
	{name: stageChart, run: agents.GenerateChart, allowed: stageWriteAllowList[stageChart], progress: 80},
	{name: stageInsights, run: agents.GenerateInsights, allowed: stageWriteAllowList[stageInsights], progress: 95},
	{name: stageFinalize, run: agents.Finalize, allowed: stageWriteAllowList[stageFinalize], progress: 100},
}

func stageIndex(name string) int {
	for i, s := range pipeline {
		if s.name == name {
			return i
		}
	}
	return -1
}

// recoveryRewindTarget maps a failing stage to the stage ActionRetryStage
// should rewind to. Per the transition table, failures during nl2sql,
// validate, or execute all retry by regenerating SQL (sql_generated |
// sql_validated -> sql_generated, query_executing -> sql_generated);
// anything else not named in that table retries in place.
func recoveryRewindTarget(failingStage string) string {
	switch failingStage {
	case stageNL2SQL, stageValidate, stageExecute:
		return stageNL2SQL
	default:
		return failingStage
	}
}
