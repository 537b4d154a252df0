package errclass

import "github.com/aiser/queryengine/types"

// RecoveryAction tells the orchestrator what to do next after a classified
// failure. Keeping retry loops here (rather than inside agents) matches the
// re-architecture decision to make agents pure stage transformations.
type RecoveryAction string

const (
	ActionAutoFix    RecoveryAction = "auto_fix"
	ActionRetryStage RecoveryAction = "retry_stage"
	ActionFail       RecoveryAction = "fail"
)

// DefaultStageRetryBudget is used when no per-subtype override applies.
const DefaultStageRetryBudget = 2

// Plan decides the recovery action for a classified error given how many
// times the failing stage has already been retried in this run.
func Plan(ce *types.ClassifiedError, attemptsSoFar int) RecoveryAction {
	if ce == nil {
		return ActionFail
	}
	switch ce.Recoverability {
	case types.RecoverAutomatic:
		return ActionAutoFix
	case types.RecoverRetry:
		budget := DefaultStageRetryBudget
		if override, ok := MaxRetries(ce.Subtype); ok {
			budget = override
		}
		if attemptsSoFar < budget {
			return ActionRetryStage
		}
		return ActionFail
	default: // manual, none
		return ActionFail
	}
}
