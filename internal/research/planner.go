package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/procurelens/marketintel/config"
)

// queryTemplates are the deterministic query shapes. The first verb is the
// category, the second the market.
var queryTemplates = []string{
	"%s market trends %s",
	"%s price increase forecast %s",
	"%s suppliers market share %s",
	"%s supply shortage disruption %s",
	"%s new regulations compliance %s",
	"%s public tender awards %s",
	"%s mergers acquisitions consolidation %s",
	"%s technology innovation breakthrough %s",
	"%s production capacity expansion %s",
	"%s sustainability carbon footprint %s",
	"%s demand outlook growth %s",
	"%s cost structure raw materials %s",
	"%s geopolitical risk trade tariffs %s",
	"%s contract pricing benchmarks %s",
	"%s labor shortage workforce %s",
}

// researchDimensions are assigned to queries round-robin.
var researchDimensions = []string{
	"market_trends",
	"pricing_dynamics",
	"supplier_landscape",
	"supply_risk",
	"regulatory_environment",
	"tender_activity",
	"market_consolidation",
	"technology_innovation",
	"capacity_utilization",
	"sustainability",
	"demand_outlook",
	"cost_structure",
	"geopolitical_risk",
	"contract_benchmarks",
	"labor_market",
}

// Planner expands a workspace request into research queries. LLM expansion is
// opportunistic; on any failure the deterministic template set is used, so
// planning itself never fails.
type Planner struct {
	cfg    *config.Config
	llm    LLMProvider
	logger *log.Logger
}

func NewPlanner(cfg *config.Config, llm LLMProvider, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{cfg: cfg, llm: llm, logger: logger}
}

// PlanQueries produces up to n queries for one category. The time filter, when
// present, is appended verbatim to every query string.
func (p *Planner) PlanQueries(ctx context.Context, category, market string, n int, timeFilter string) []ResearchQuery {
	if n <= 0 {
		return nil
	}
	if p.llm != nil {
		if queries, err := p.planWithLLM(ctx, category, market, n, timeFilter); err == nil && len(queries) > 0 {
			return queries
		} else if err != nil {
			p.logger.Printf("LLM query expansion failed for %q, using templates: %v", category, err)
		}
	}
	return p.templateQueries(category, market, n, timeFilter)
}

func (p *Planner) templateQueries(category, market string, n int, timeFilter string) []ResearchQuery {
	// the template set bounds the fallback; recycling entries would only
	// produce duplicate searches
	if n > len(queryTemplates) {
		n = len(queryTemplates)
	}
	out := make([]ResearchQuery, 0, n)
	for i := 0; i < n; i++ {
		tmpl := queryTemplates[i]
		dim := researchDimensions[i%len(researchDimensions)]
		q := fmt.Sprintf(tmpl, category, market)
		if timeFilter != "" {
			q = q + " " + timeFilter
		}
		out = append(out, ResearchQuery{
			Query:             q,
			Dimension:         dim,
			Rationale:         fmt.Sprintf("Standing %s scan for %s in %s", strings.ReplaceAll(dim, "_", " "), category, market),
			IntelligenceValue: "Medium",
			Category:          category,
		})
	}
	return out
}

func (p *Planner) planWithLLM(ctx context.Context, category, market string, n int, timeFilter string) ([]ResearchQuery, error) {
	model := p.cfg.LLM.Routing.Planning
	if model == "" {
		model = p.cfg.LLM.Routing.Fallback
	}
	if model == "" {
		return nil, fmt.Errorf("no planning model configured")
	}

	prompt := fmt.Sprintf(`Generate %d web search queries for procurement market intelligence.
Category: %s
Market: %s

Cover distinct research dimensions (pricing, supply risk, suppliers, regulation, tenders, innovation, capacity, demand).
Return ONLY strict JSON:
{"queries": [ {"query": string, "dimension": string, "rationale": string, "intelligence_value": "High|Medium|Low"} ]}`, n, category, market)

	out, err := p.llm.Generate(ctx, prompt, model, map[string]interface{}{"temperature": 0.4, "max_tokens": 1200, "json": true})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Queries []struct {
			Query             string `json:"query"`
			Dimension         string `json:"dimension"`
			Rationale         string `json:"rationale"`
			IntelligenceValue string `json:"intelligence_value"`
		} `json:"queries"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(out)), &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Queries) == 0 {
		return nil, fmt.Errorf("no queries in model output")
	}

	queries := make([]ResearchQuery, 0, n)
	for i, q := range parsed.Queries {
		if i >= n {
			break
		}
		if strings.TrimSpace(q.Query) == "" {
			continue
		}
		query := strings.TrimSpace(q.Query)
		if timeFilter != "" && !strings.Contains(query, "after:") {
			query = query + " " + timeFilter
		}
		dim := q.Dimension
		if dim == "" {
			dim = researchDimensions[i%len(researchDimensions)]
		}
		iv := q.IntelligenceValue
		if iv == "" {
			iv = "Medium"
		}
		queries = append(queries, ResearchQuery{
			Query:             query,
			Dimension:         dim,
			Rationale:         q.Rationale,
			IntelligenceValue: iv,
			Category:          category,
		})
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no usable queries in model output")
	}
	return queries, nil
}

// TimeFilterFor converts a named window into an "after:YYYY-MM-DD" search
// operator. Unknown windows yield an empty filter.
func TimeFilterFor(window string, now time.Time) string {
	var cutoff time.Time
	switch window {
	case "6m":
		cutoff = now.AddDate(0, -6, 0)
	case "12m":
		cutoff = now.AddDate(-1, 0, 0)
	case "2y":
		cutoff = now.AddDate(-2, 0, 0)
	default:
		return ""
	}
	return "after:" + cutoff.Format("2006-01-02")
}

// CapQueries truncates the concatenated per-category plan to the run budget.
// The cap is global across categories, not per category.
func CapQueries(queries []ResearchQuery, max int) []ResearchQuery {
	if max <= 0 || len(queries) <= max {
		return queries
	}
	return queries[:max]
}
