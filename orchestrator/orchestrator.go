package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aiser/queryengine/agents"
	"github.com/aiser/queryengine/errclass"
	"github.com/aiser/queryengine/ratequota"
	"github.com/aiser/queryengine/streaming"
	"github.com/aiser/queryengine/types"
	"github.com/aiser/queryengine/workflow"
)

// DefaultStageTimeout bounds how long any single agent call may run before
// the orchestrator classifies it as a timeout and applies the recovery plan.
const DefaultStageTimeout = 60 * time.Second

// Recorder observes stage outcomes for the feedback/metrics layer (C11); a
// nil Recorder is valid and simply means no observation is recorded.
// errorSubtype is empty on success and carries the classified error's
// Subtype on failure, letting the recorder break failures down by pattern
// without the orchestrator depending on package feedback.
type Recorder interface {
	RecordStage(stageName string, ok bool, durationMs int64, errorSubtype string)
}

// Orchestrator sequences agents.Deps' collaborators through the fixed
// pipeline for one workflow run at a time; it is safe for concurrent use
// across independent Run calls (all mutable per-run state lives on the
// *types.WorkflowState and the call stack, not on the Orchestrator).
type Orchestrator struct {
	Deps         agents.Deps
	Breakers     *workflow.CircuitBreakerRegistry
	Quota        *ratequota.QuotaManager
	Recorder     Recorder
	StageTimeout time.Duration
	Logger       *zap.Logger
}

// New builds an Orchestrator with a fresh per-stage circuit breaker
// registry. quota may be nil when running without tenant credit accounting
// (e.g. in tests).
func New(deps agents.Deps, quota *ratequota.QuotaManager, recorder Recorder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Deps:         deps,
		Breakers:     workflow.NewCircuitBreakerRegistry(workflow.DefaultCircuitBreakerConfig(), nil, logger),
		Quota:        quota,
		Recorder:     recorder,
		StageTimeout: DefaultStageTimeout,
		Logger:       logger,
	}
}

// Run drives state through the fixed pipeline, emitting a Frame through
// sess at every stage boundary, applying recovery transitions for
// classified failures, and debiting the tenant's credit quota once the run
// completes (never on a failed/critical run, matching the quota design:
// consumption reflects tokens actually spent).
func (o *Orchestrator) Run(ctx context.Context, sess *streaming.Session, state *types.WorkflowState) (*types.WorkflowState, error) {
	state.ExecutionMetadata.StartedAt = time.Now()
	sess.Emit(streaming.Frame{
		Kind:           streaming.FrameStart,
		RequestID:      state.RequestID,
		ConversationID: state.ConversationID,
	})

	idx := 0
	for idx < len(pipeline) {
		select {
		case <-sess.Context().Done():
			return o.cancelled(sess, state)
		default:
		}

		stage := pipeline[idx]

		// Conversational branch: nothing to query against, skip straight to
		// finalize, which itself asks the gateway for a direct reply.
		if stage.name == stageNL2SQL && !state.HasDataSource() {
			idx = stageIndex(stageFinalize)
			continue
		}

		next, ce := o.runStage(ctx, sess, stage, state)
		state = next

		if ce == nil {
			idx++
			continue
		}

		attempts := state.IncrRetry(types.Stage(stage.name))
		action := errclass.Plan(ce, attempts-1)

		switch action {
		case errclass.ActionAutoFix, errclass.ActionRetryStage:
			rewindTo := recoveryRewindTarget(stage.name)
			o.Logger.Info("retrying stage after classified failure",
				zap.String("stage", stage.name), zap.String("rewind_to", rewindTo),
				zap.String("subtype", ce.Subtype), zap.Int("attempt", attempts))
			idx = stageIndex(rewindTo)
			continue
		default: // ActionFail
			return o.fail(sess, state, ce)
		}
	}

	o.consumeQuota(ctx, state)

	sess.Emit(streaming.Frame{
		Kind:            streaming.FrameComplete,
		RequestID:       state.RequestID,
		ConversationID:  state.ConversationID,
		Chart:           state.EChartsConfig,
		Insights:        state.Insights,
		Recommendations: state.Recommendations,
		Message:         state.Narration,
	})
	return state, nil
}

func (o *Orchestrator) cancelled(sess *streaming.Session, state *types.WorkflowState) (*types.WorkflowState, error) {
	state.Stage = types.StageFailed
	sess.Emit(streaming.Frame{Kind: streaming.FrameError, RequestID: state.RequestID, Message: "cancelled"})
	return state, sess.Context().Err()
}

func (o *Orchestrator) fail(sess *streaming.Session, state *types.WorkflowState, ce *types.ClassifiedError) (*types.WorkflowState, error) {
	state.Stage = types.StageFailed
	state.Error = ce
	state.CriticalFailure = true
	sess.Emit(streaming.Frame{
		Kind:          streaming.FrameError,
		RequestID:     state.RequestID,
		Message:       ce.Message,
		ClassifiedErr: ce,
	})
	return state, fmt.Errorf("workflow failed at a recovery boundary: %s/%s", ce.Category, ce.Subtype)
}

// runStage executes one pipeline step behind its circuit breaker, enforces
// the stage's write allow-list, recovers from agent panics, and emits the
// entry/exit progress frames the streaming layer surfaces to the client.
func (o *Orchestrator) runStage(ctx context.Context, sess *streaming.Session, stage stageDef, state *types.WorkflowState) (*types.WorkflowState, *types.ClassifiedError) {
	cb := o.Breakers.GetOrCreate(stage.name)
	if allowed, cbErr := cb.AllowRequest(); !allowed {
		return state, &types.ClassifiedError{
			Category: types.CategoryUnknown, Subtype: "circuit_open",
			Severity: types.SeverityCritical, Recoverability: types.RecoverManual,
			SuggestedFix: "wait for the circuit to recover before retrying this stage",
			Message:      cbErr.Error(),
		}
	}

	sess.Emit(streaming.Frame{
		Kind:      streaming.FrameProgress,
		RequestID: state.RequestID,
		Progress:  &types.Progress{Percentage: stage.progress, Stage: state.Stage, Message: "running " + stage.name},
	})

	stageCtx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	before := snapshot(state)
	start := time.Now()
	result, ce := o.invoke(stageCtx, stage, state)
	duration := time.Since(start)

	result.RecordStageDuration(types.Stage(stage.name), duration.Milliseconds())

	if diffErr := checkWriteAllowList(stage, before, result); diffErr != nil {
		cb.RecordFailure()
		o.record(stage.name, false, duration, diffErr.Subtype)
		return result, diffErr
	}

	if ce != nil {
		cb.RecordFailure()
		o.record(stage.name, false, duration, ce.Subtype)
		return result, ce
	}

	cb.RecordSuccess()
	o.record(stage.name, true, duration, "")

	result.Progress = types.Progress{Percentage: stage.progress, Stage: result.Stage, Message: stage.name + " complete"}
	sess.Emit(o.resultFrame(stage, result))

	return result, nil
}

// invoke calls the stage's agent function, converting a panic into a
// classified, non-crashing failure instead of bringing down the run.
func (o *Orchestrator) invoke(ctx context.Context, stage stageDef, state *types.WorkflowState) (result *types.WorkflowState, ce *types.ClassifiedError) {
	result = state
	defer func() {
		if r := recover(); r != nil {
			ce = &types.ClassifiedError{
				Category: types.CategoryUnknown, Subtype: "agent_panic",
				Severity: types.SeverityCritical, Recoverability: types.RecoverManual,
				SuggestedFix: "inspect the agent implementation; it panicked instead of returning an error",
				Message:      fmt.Sprintf("%s panicked: %v", stage.name, r),
			}
		}
	}()
	return stage.run(ctx, state, o.Deps)
}

// resultFrame emits the payload frame a completed stage makes available,
// beyond the generic progress update: chart/insights land as soon as their
// stage finishes rather than waiting for the final complete frame.
func (o *Orchestrator) resultFrame(stage stageDef, state *types.WorkflowState) streaming.Frame {
	base := streaming.Frame{RequestID: state.RequestID, ConversationID: state.ConversationID}
	switch stage.name {
	case stageChart:
		base.Kind = streaming.FrameChart
		base.Chart = state.EChartsConfig
	case stageInsights:
		base.Kind = streaming.FrameInsights
		base.Insights = state.Insights
		base.Recommendations = state.Recommendations
	default:
		base.Kind = streaming.FrameProgress
		base.Progress = &state.Progress
	}
	return base
}

func (o *Orchestrator) record(stageName string, ok bool, d time.Duration, errorSubtype string) {
	if o.Recorder != nil {
		o.Recorder.RecordStage(stageName, ok, d.Milliseconds(), errorSubtype)
	}
}

func (o *Orchestrator) timeout() time.Duration {
	if o.StageTimeout <= 0 {
		return DefaultStageTimeout
	}
	return o.StageTimeout
}

// consumeQuota debits the tenant's AI-credit quota for the tokens this run
// spent. Admission (Check) happens in the public request surface before the
// workflow starts; Consume only ever runs here, on a completed workflow, per
// the C9 design decision that denied admissions never touch the ledger.
func (o *Orchestrator) consumeQuota(ctx context.Context, state *types.WorkflowState) {
	if o.Quota == nil {
		return
	}
	cost := ratequota.CreditsForUsage(state.ExecutionMetadata.TokensIn, state.ExecutionMetadata.TokensOut)
	if cost == 0 {
		return
	}
	o.Quota.Consume(ctx, state.Tenant, cost)
}

// snapshot captures each top-level JSON field of state as raw bytes so a
// later call can detect exactly which fields a stage changed.
func snapshot(state *types.WorkflowState) map[string]string {
	b, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = string(v)
	}
	return out
}

// checkWriteAllowList diffs state against its pre-call snapshot and fails
// the run if the stage touched a field outside its declared allow-list.
func checkWriteAllowList(stage stageDef, before map[string]string, state *types.WorkflowState) *types.ClassifiedError {
	after := snapshot(state)
	for k, av := range after {
		if alwaysAllowed[k] || stage.allowed[k] {
			continue
		}
		if before[k] != av {
			return &types.ClassifiedError{
				Category: types.CategoryUnknown, Subtype: "state_integrity",
				Severity: types.SeverityCritical, Recoverability: types.RecoverNone,
				SuggestedFix: "fix the agent to only write the fields its stage owns",
				Message:      fmt.Sprintf("stage %q wrote field %q outside its allow-list", stage.name, k),
			}
		}
	}
	return nil
}
