package agents

import (
	"context"
	"strconv"

	"github.com/aiser/queryengine/types"
)

// GenerateChart picks an ECharts-compatible chart type deterministically
// from the result's shape, grounded on the original service's
// visualization.py heuristics: a single numeric column over a dimension
// becomes a bar chart, two+ numeric series become a line chart, one
// dimension/one measure with few rows becomes a pie chart, and anything
// else falls back to a table. This agent never calls the LLM: chart
// selection from a known result shape doesn't need it.
func GenerateChart(ctx context.Context, state *types.WorkflowState, deps Deps) (*types.WorkflowState, *types.ClassifiedError) {
	result := state.QueryResult
	if result == nil || result.RowCount == 0 {
		state.EChartsConfig = &types.ChartConfig{ChartType: "table", Option: map[string]any{}}
		state.Stage = types.StageChartGenerated
		return state, nil
	}

	dimensionCol, measureCols := classifyColumns(result)
	chartType := pickChartType(dimensionCol, measureCols, result.RowCount)

	state.EChartsConfig = &types.ChartConfig{
		ChartType: chartType,
		Option:    buildOption(chartType, dimensionCol, measureCols, result),
	}
	state.Stage = types.StageChartGenerated
	return state, nil
}

func classifyColumns(result *types.QueryResult) (dimension string, measures []string) {
	if result.RowCount == 0 {
		return "", nil
	}
	first := result.Rows[0]
	for _, col := range result.Schema {
		if isNumeric(first[col]) {
			measures = append(measures, col)
		} else if dimension == "" {
			dimension = col
		}
	}
	if dimension == "" && len(result.Schema) > 0 {
		dimension = result.Schema[0]
	}
	return dimension, measures
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int64, float64, float32:
		return true
	default:
		return false
	}
}

func pickChartType(dimension string, measures []string, rowCount int) string {
	switch {
	case len(measures) == 0:
		return "table"
	case len(measures) >= 2:
		return "line"
	case dimension != "" && rowCount <= 8:
		return "pie"
	default:
		return "bar"
	}
}

func buildOption(chartType, dimension string, measures []string, result *types.QueryResult) map[string]any {
	categories := make([]string, 0, result.RowCount)
	for _, row := range result.Rows {
		categories = append(categories, stringify(row[dimension]))
	}

	series := make([]map[string]any, 0, len(measures))
	for _, m := range measures {
		values := make([]any, 0, result.RowCount)
		for _, row := range result.Rows {
			values = append(values, row[m])
		}
		series = append(series, map[string]any{
			"name": m,
			"type": chartSeriesType(chartType),
			"data": values,
		})
	}

	option := map[string]any{
		"xAxis":  map[string]any{"type": "category", "data": categories},
		"yAxis":  map[string]any{"type": "value"},
		"series": series,
	}
	if chartType == "pie" {
		option = map[string]any{"series": []map[string]any{{"type": "pie", "data": pieData(categories, measures, result)}}}
	}
	return option
}

func chartSeriesType(chartType string) string {
	if chartType == "line" {
		return "line"
	}
	return "bar"
}

func pieData(categories []string, measures []string, result *types.QueryResult) []map[string]any {
	if len(measures) == 0 {
		return nil
	}
	measure := measures[0]
	out := make([]map[string]any, 0, len(categories))
	for i, row := range result.Rows {
		out = append(out, map[string]any{"name": categories[i], "value": row[measure]})
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
