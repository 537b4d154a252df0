// Package agents holds the pure, single-stage transformations that make up
// a workflow run: each agent reads a *types.WorkflowState and returns the
// next state plus an optional classified failure. Agents never retry, never
// talk to errclass, and never decide what happens after a failure — that
// belongs to the orchestrator, which is the only caller permitted to invoke
// errclass.Plan. This split mirrors the original service's nodes/ modules
// (routing_node.py, validation_node.py, ...), each a standalone function
// over a shared state object rather than a stateful class.
package agents

import (
	"go.uber.org/zap"

	"github.com/aiser/queryengine/cache"
	"github.com/aiser/queryengine/executor"
	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/schema"
)

// Deps bundles every collaborator an agent may call. Agents take Deps by
// value and must treat it as read-only shared infrastructure.
type Deps struct {
	Gateway    *llm.Gateway
	Schemas    *schema.Registry
	Executor   *executor.Registry
	Cache      *cache.LayeredCache
	Model      string
	Logger     *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
