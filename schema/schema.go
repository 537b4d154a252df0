// Package schema fetches, caches, and prunes data-source schemas to fit a
// prompt's token budget, and formats them for planning vs. SQL-generation
// prompts.
package schema

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/aiser/queryengine/cache"
	"github.com/aiser/queryengine/llm/tokenizer"
)

const schemaTTL = 24 * time.Hour

// Column describes one column of a table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table describes one table of a data source's schema.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema is the full schema of a data source as fetched from its registry.
type Schema struct {
	DataSourceID string  `json:"data_source_id"`
	Tables       []Table `json:"tables"`
}

// PrunedSchema is a schema representation sized to fit a token budget.
type PrunedSchema struct {
	Tables  []Table  `json:"tables"`
	Dropped []string `json:"dropped"` // table names removed to fit the budget
}

// Fetcher resolves a data source's full schema; implemented by the external
// data-source registry collaborator.
type Fetcher interface {
	FetchSchema(ctx context.Context, dataSourceID string) (*Schema, error)
}

const defaultBudgetTokens = 4000

func init() {
	tokenizer.RegisterOpenAITokenizers()
}

// Registry caches fetched schemas and serves pruned, prompt-ready views of them.
type Registry struct {
	fetcher Fetcher
	cache   *cache.LayeredCache
}

// NewRegistry builds a schema registry over a Fetcher and cache.
func NewRegistry(fetcher Fetcher, c *cache.LayeredCache) *Registry {
	return &Registry{fetcher: fetcher, cache: c}
}

// Get returns the cached schema for a data source, fetching and caching it
// on a miss.
func (r *Registry) Get(ctx context.Context, dataSourceID string) (*Schema, error) {
	ns := cache.Schemas(r.cache, schemaTTL)
	var s Schema
	if ns.GetJSON(ctx, cache.SchemaKey(dataSourceID), &s) {
		return &s, nil
	}

	fetched, err := r.fetcher.FetchSchema(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	_ = ns.SetJSON(ctx, cache.SchemaKey(dataSourceID), fetched)
	return fetched, nil
}

// Invalidate drops a data source's cached schema, e.g. after a fingerprint change.
func (r *Registry) Invalidate(ctx context.Context, dataSourceID string) {
	cache.Schemas(r.cache, schemaTTL).Delete(ctx, cache.SchemaKey(dataSourceID))
}

// Optimize prunes a schema to fit budgetTokens (defaulting to
// defaultBudgetTokens), keeping tables/columns most relevant to the query's
// intent. Tables are added in rank order until the next one would exceed
// the budget; the first-ranked table is always included, even when it alone
// exceeds the budget. model selects the token counter:
// a registered OpenAI model name gets an exact tiktoken count, anything else
// falls back to the CJK-aware character estimator.
func Optimize(s *Schema, query, model string, budgetTokens int) *PrunedSchema {
	if budgetTokens <= 0 {
		budgetTokens = defaultBudgetTokens
	}

	counter := tokenizer.GetTokenizerOrEstimator(model)
	scored := rankTables(s.Tables, query)

	out := &PrunedSchema{}
	used := 0
	for i, t := range scored {
		rendered := renderTableCompact(t)
		n, _ := counter.CountTokens(rendered)
		if used+n > budgetTokens && len(out.Tables) > 0 {
			for _, rest := range scored[i:] {
				out.Dropped = append(out.Dropped, rest.Name)
			}
			break
		}
		out.Tables = append(out.Tables, t)
		used += n
	}
	return out
}

// rankTables orders tables by a relevance score against the lowercased
// query, a simple intent-keyword heuristic: a table name appearing as a
// substring scores 10 and each matching column name scores 1; ties keep the
// original order.
func rankTables(tables []Table, query string) []Table {
	q := strings.ToLower(query)
	scores := make([]int, len(tables))
	for i, t := range tables {
		score := 0
		if strings.Contains(q, strings.ToLower(t.Name)) {
			score += 10
		}
		for _, c := range t.Columns {
			if strings.Contains(q, strings.ToLower(c.Name)) {
				score++
			}
		}
		scores[i] = score
	}

	idx := make([]int, len(tables))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	out := make([]Table, len(tables))
	for i, j := range idx {
		out[i] = tables[j]
	}
	return out
}

// FormatStructured renders a pruned schema hierarchically, for planning prompts.
func FormatStructured(p *PrunedSchema) string {
	var b strings.Builder
	for _, t := range p.Tables {
		b.WriteString("Table: " + t.Name + "\n")
		for _, c := range t.Columns {
			b.WriteString("  - " + c.Name + " (" + c.Type + ")\n")
		}
	}
	return b.String()
}

// FormatCompact renders a pruned schema flat, for SQL-generation prompts.
func FormatCompact(p *PrunedSchema) string {
	var b strings.Builder
	for i, t := range p.Tables {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(renderTableCompact(t))
	}
	return b.String()
}

func renderTableCompact(t Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Name
	}
	return t.Name + "(" + strings.Join(cols, ", ") + ")"
}

// IntentHint is an optional per-agent signal narrowing which tables matter,
// set by earlier agents (e.g. the router) to help Optimize rank tables.
type IntentHint struct {
	Keywords []string
}
