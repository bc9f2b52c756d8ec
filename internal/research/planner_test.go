package research

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/procurelens/marketintel/config"
)

// stubLLM returns canned output and records calls.
type stubLLM struct {
	out     string
	err     error
	calls   int
	prompts []string
}

func (s *stubLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.out, s.err
}

func (s *stubLLM) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.out, 10, 5, s.err
}

func (s *stubLLM) GetModelInfo(model string) (ModelInfo, error) {
	return ModelInfo{Name: model, Provider: "stub", MaxTokens: 4096}, nil
}

func (s *stubLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	return float64(inputTokens+outputTokens) * 0.001
}

func plannerConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{Planning: "stub-model", Analysis: "stub-model", Synthesis: "stub-model", Fallback: "stub-model"},
		},
	}
}

func TestTemplateQueriesRoundRobin(t *testing.T) {
	p := NewPlanner(plannerConfig(), nil, nil)

	queries := p.PlanQueries(context.Background(), "packaging", "steel drums", 10, "")
	if len(queries) != 10 {
		t.Fatalf("expected 10 queries, got %d", len(queries))
	}
	for i, q := range queries {
		if !strings.Contains(q.Query, "packaging") || !strings.Contains(q.Query, "steel drums") {
			t.Fatalf("query %d missing category or market: %q", i, q.Query)
		}
		wantDim := researchDimensions[i%len(researchDimensions)]
		if q.Dimension != wantDim {
			t.Fatalf("query %d dimension = %q, want %q", i, q.Dimension, wantDim)
		}
		if q.IntelligenceValue != "Medium" {
			t.Fatalf("query %d intelligence value = %q, want Medium", i, q.IntelligenceValue)
		}
		if q.Category != "packaging" {
			t.Fatalf("query %d category = %q", i, q.Category)
		}
	}
}

func TestTemplateQueriesClampToTemplateSet(t *testing.T) {
	p := NewPlanner(plannerConfig(), nil, nil)

	queries := p.PlanQueries(context.Background(), "packaging", "steel drums", 20, "")
	if len(queries) != len(queryTemplates) {
		t.Fatalf("expected %d queries, got %d", len(queryTemplates), len(queries))
	}
	seen := make(map[string]int, len(queries))
	for i, q := range queries {
		if prev, ok := seen[q.Query]; ok {
			t.Fatalf("duplicate query at %d and %d: %q", prev, i, q.Query)
		}
		seen[q.Query] = i
	}
}

func TestTemplateQueriesAppendTimeFilter(t *testing.T) {
	p := NewPlanner(plannerConfig(), nil, nil)

	queries := p.PlanQueries(context.Background(), "logistics", "sea freight", 3, "after:2025-01-01")
	for _, q := range queries {
		if !strings.HasSuffix(q.Query, " after:2025-01-01") {
			t.Fatalf("time filter not appended: %q", q.Query)
		}
	}
}

func TestPlanQueriesFallsBackOnLLMError(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("model unavailable")}
	p := NewPlanner(plannerConfig(), llm, nil)

	queries := p.PlanQueries(context.Background(), "chemicals", "solvents", 5, "")
	if len(queries) != 5 {
		t.Fatalf("expected 5 template queries on fallback, got %d", len(queries))
	}
	if llm.calls == 0 {
		t.Fatalf("expected LLM to be attempted first")
	}
}

func TestPlanQueriesFallsBackOnGarbageOutput(t *testing.T) {
	llm := &stubLLM{out: "I cannot help with that."}
	p := NewPlanner(plannerConfig(), llm, nil)

	queries := p.PlanQueries(context.Background(), "chemicals", "solvents", 4, "")
	if len(queries) != 4 {
		t.Fatalf("expected 4 template queries on parse failure, got %d", len(queries))
	}
}

func TestPlanQueriesUsesLLMOutput(t *testing.T) {
	llm := &stubLLM{out: `{"queries": [
		{"query": "solvent price index europe", "dimension": "pricing_dynamics", "rationale": "track pricing", "intelligence_value": "High"},
		{"query": "solvent suppliers capacity after:2020-01-01", "dimension": "", "rationale": "", "intelligence_value": ""},
		{"query": "solvent regulations reach", "dimension": "regulatory_environment", "rationale": "compliance", "intelligence_value": "Low"},
		{"query": "extra beyond cap", "dimension": "demand_outlook", "rationale": "", "intelligence_value": "Low"}
	]}`}
	p := NewPlanner(plannerConfig(), llm, nil)

	queries := p.PlanQueries(context.Background(), "chemicals", "solvents", 3, "after:2025-06-01")
	if len(queries) != 3 {
		t.Fatalf("expected cap at 3 queries, got %d", len(queries))
	}
	if !strings.HasSuffix(queries[0].Query, " after:2025-06-01") {
		t.Fatalf("time filter not appended to first query: %q", queries[0].Query)
	}
	// a query that already carries an after: operator is left alone
	if queries[1].Query != "solvent suppliers capacity after:2020-01-01" {
		t.Fatalf("pre-filtered query modified: %q", queries[1].Query)
	}
	if queries[1].Dimension != researchDimensions[1] {
		t.Fatalf("empty dimension not defaulted round-robin: %q", queries[1].Dimension)
	}
	if queries[1].IntelligenceValue != "Medium" {
		t.Fatalf("empty intelligence value not defaulted: %q", queries[1].IntelligenceValue)
	}
	if queries[0].IntelligenceValue != "High" {
		t.Fatalf("model-provided intelligence value lost: %q", queries[0].IntelligenceValue)
	}
}

func TestTimeFilterFor(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		window string
		want   string
	}{
		{"6m", "after:2026-02-15"},
		{"12m", "after:2025-08-15"},
		{"2y", "after:2024-08-15"},
		{"", ""},
		{"all", ""},
	}
	for _, c := range cases {
		if got := TimeFilterFor(c.window, now); got != c.want {
			t.Fatalf("TimeFilterFor(%q) = %q, want %q", c.window, got, c.want)
		}
	}
}

func TestCapQueriesIsGlobal(t *testing.T) {
	var queries []ResearchQuery
	for _, cat := range []string{"a", "b", "c"} {
		for i := 0; i < 4; i++ {
			queries = append(queries, ResearchQuery{Query: fmt.Sprintf("%s-%d", cat, i), Category: cat})
		}
	}
	capped := CapQueries(queries, 5)
	if len(capped) != 5 {
		t.Fatalf("expected 5 queries after cap, got %d", len(capped))
	}
	// truncation keeps the front of the concatenated plan
	if capped[0].Query != "a-0" || capped[4].Query != "b-0" {
		t.Fatalf("unexpected capped order: first=%q last=%q", capped[0].Query, capped[4].Query)
	}
	if got := CapQueries(queries[:3], 5); len(got) != 3 {
		t.Fatalf("cap should not pad, got %d", len(got))
	}
	if got := CapQueries(queries, 0); len(got) != len(queries) {
		t.Fatalf("cap 0 means unlimited, got %d", len(got))
	}
}
