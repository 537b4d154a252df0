package agents

import (
	"context"

	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/types"
)

const conversationSystemPrompt = `You are an analytics assistant. The user has not selected a data source,
so no data query can run. Reply conversationally in at most three sentences, and explain
that analyzing data requires selecting a data source first.`

// Finalize closes out a workflow run. On the data branch it just marks the
// state complete; on the conversational branch (no data source) it asks the
// gateway for a direct reply and writes it to Narration.
func Finalize(ctx context.Context, state *types.WorkflowState, deps Deps) (*types.WorkflowState, *types.ClassifiedError) {
	if !state.HasDataSource() {
		resp, err := deps.Gateway.Complete(ctx, deps.Model, &llm.ChatRequest{
			Messages: []llm.Message{
				types.NewSystemMessage(conversationSystemPrompt),
				types.NewUserMessage(state.Query),
			},
			Temperature: 0.5,
			MaxTokens:   300,
		})
		if err != nil {
			state.Narration = "I couldn't process that message right now. Select a data source to analyze your data."
		} else {
			state.AddTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			state.Narration = responseText(resp)
		}
	}

	state.Stage = types.StageComplete
	return state, nil
}
