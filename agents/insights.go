package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/types"
)

var roleTone = map[types.UserRole]string{
	types.RoleAdmin:    "direct, operational, focused on risk and exceptions",
	types.RoleManager:  "business-outcome oriented, focused on trends and comparisons",
	types.RoleAnalyst:  "precise and quantitative, comfortable with statistical nuance",
	types.RoleEmployee: "plain-language, action-oriented, avoid jargon",
	types.RoleViewer:   "brief, high-level, a short summary is enough",
}

type insightsJSON struct {
	Insights        []types.Insight        `json:"insights"`
	Recommendations []types.Recommendation `json:"recommendations"`
}

// GenerateInsights asks the gateway to surface observations and actions from
// the query result, tailoring tone to the caller's role so the same result
// set reads differently for an admin than for a viewer.
func GenerateInsights(ctx context.Context, state *types.WorkflowState, deps Deps) (*types.WorkflowState, *types.ClassifiedError) {
	if state.QueryResult == nil || state.QueryResult.RowCount == 0 {
		state.Insights = []types.Insight{{Title: "No matching data", Description: "The query returned no rows.", Confidence: 1.0}}
		state.Stage = types.StageInsightsGenerated
		return state, nil
	}

	tone := roleTone[state.UserRef.Role]
	if tone == "" {
		tone = roleTone[types.RoleAnalyst]
	}

	prompt := fmt.Sprintf(
		"Tone: %s.\nGiven this query result summary (%d rows, columns: %v), "+
			`produce JSON {"insights":[{"title":"","description":"","confidence":0.0}],"recommendations":[{"title":"","description":""}]}. `+
			"At most 5 insights and 3 recommendations.",
		tone, state.QueryResult.RowCount, state.QueryResult.Schema,
	)

	resp, err := deps.Gateway.Complete(ctx, deps.Model, &llm.ChatRequest{
		Messages: []llm.Message{
			types.NewSystemMessage(prompt),
			types.NewUserMessage(sampleRowsJSON(state.QueryResult)),
		},
		Temperature: 0.3,
		MaxTokens:   600,
	})
	if err != nil {
		state.Insights = nil
		state.Recommendations = nil
		state.Stage = types.StageInsightsGenerated
		return state, nil // insights are best-effort; absence is not a workflow failure
	}
	state.AddTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	parsed := parseInsights(responseText(resp))
	state.Insights = parsed.Insights
	state.Recommendations = parsed.Recommendations
	state.Stage = types.StageInsightsGenerated
	return state, nil
}

func parseInsights(text string) insightsJSON {
	block := jsonBlockRe.FindString(text)
	var parsed insightsJSON
	if block == "" {
		return parsed
	}
	_ = json.Unmarshal([]byte(block), &parsed)
	return parsed
}

func sampleRowsJSON(result *types.QueryResult) string {
	sample := result.Rows
	if len(sample) > 20 {
		sample = sample[:20]
	}
	b, err := json.Marshal(sample)
	if err != nil {
		return "[]"
	}
	return string(b)
}
