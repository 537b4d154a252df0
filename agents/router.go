package agents

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/types"
)

// routingJSON is the tolerant shape the router prompt asks the model to
// produce; any field it omits falls back to a safe default below.
type routingJSON struct {
	PrimaryAgent string  `json:"primary_agent"`
	Strategy     string  `json:"strategy"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

const routerSystemPrompt = `You route an analytics query to the agent best suited to handle it.
Respond with exactly one JSON object: {"primary_agent":"nl2sql"|"chart"|"insights"|"conversation","strategy":"sequential"|"direct","confidence":0.0-1.0,"reasoning":"..."}.
Route to "nl2sql" whenever the query asks about data and a data source is available.
Route to "conversation" for greetings, clarifying questions, or anything that doesn't need data.`

// Route decides which downstream agent handles state.Query, writing
// RoutingDecision and advancing Stage. When the request carries no data
// source, routing always resolves to the conversational branch regardless
// of what the model returns, since there is nothing to query against.
func Route(ctx context.Context, state *types.WorkflowState, deps Deps) (*types.WorkflowState, *types.ClassifiedError) {
	if !state.HasDataSource() {
		state.RoutingDecision = &types.RoutingDecision{
			PrimaryAgent: "conversation",
			Strategy:     "direct",
			Confidence:   1.0,
			Reasoning:    "no data source attached to this request",
		}
		state.Stage = types.StageRoutedInsights
		return state, nil
	}

	resp, err := deps.Gateway.Complete(ctx, deps.Model, &llm.ChatRequest{
		Messages: []llm.Message{
			types.NewSystemMessage(routerSystemPrompt),
			types.NewUserMessage(state.Query),
		},
		Temperature: 0,
		MaxTokens:   200,
	})
	if resp != nil {
		state.AddTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	decision := parseRoutingDecision(resp, err)
	state.RoutingDecision = decision

	switch decision.PrimaryAgent {
	case "chart":
		state.Stage = types.StageRoutedChart
	case "insights", "conversation":
		state.Stage = types.StageRoutedInsights
	default:
		state.Stage = types.StageRoutedNL2SQL
	}
	return state, nil
}

// parseRoutingDecision tolerantly extracts a routing decision from the
// model's reply, defaulting to the safest choice (nl2sql, sequential, low
// confidence) whenever the reply can't be parsed — a malformed routing
// reply should never abort the workflow.
func parseRoutingDecision(resp *llm.ChatResponse, callErr error) *types.RoutingDecision {
	fallback := &types.RoutingDecision{PrimaryAgent: "nl2sql", Strategy: "sequential", Confidence: 0.5}
	if callErr != nil || resp == nil || len(resp.Choices) == 0 {
		return fallback
	}

	content := resp.Choices[0].Message.Content
	block := jsonBlockRe.FindString(content)
	if block == "" {
		return fallback
	}

	var parsed routingJSON
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return fallback
	}
	if parsed.PrimaryAgent == "" {
		parsed.PrimaryAgent = "nl2sql"
	}
	if parsed.Strategy == "" {
		parsed.Strategy = "sequential"
	}
	if parsed.Confidence <= 0 {
		parsed.Confidence = 0.5
	}
	return &types.RoutingDecision{
		PrimaryAgent: strings.ToLower(strings.TrimSpace(parsed.PrimaryAgent)),
		Strategy:     parsed.Strategy,
		Confidence:   parsed.Confidence,
		Reasoning:    parsed.Reasoning,
	}
}
