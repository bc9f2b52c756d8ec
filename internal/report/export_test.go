package report

import (
	"strings"
	"testing"
	"time"

	"github.com/procurelens/marketintel/internal/research"
)

func sampleStore() research.IntelligenceStore {
	return research.IntelligenceStore{
		Workspace:   "acme",
		Market:      "steel drums",
		RunID:       "run-42",
		GeneratedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		TokensUsed:  1234,
		Cost:        0.0456,
		Documents: []research.ScrapedDocument{
			{URL: "https://a.example.com", Title: "Capacity report", Success: true},
			{URL: "https://b.example.com", Success: true},
		},
		Analyses: map[string]research.CategoryAnalysis{
			"pricing": {
				Category: "pricing",
				ExecutiveSummary: &research.ExecutiveSummary{
					KeyRecommendation: "Lock in annual contracts now",
					UrgencyLevel:      "High",
					ConfidenceLevel:   "Medium",
				},
				Insights: []research.Insight{{
					Headline:   "Prices up 12% YoY",
					Confidence: "High",
					KeyMetrics: []research.KeyMetric{{Metric: "price index", Value: "+12%", Context: "YoY"}},
				}},
				RiskFlags: []research.RiskFlag{{
					RiskType:    "Price",
					Description: "continued volatility",
					Likelihood:  "High",
					Impact:      "Medium",
					SourceURLs:  []string{"https://a.example.com"},
				}},
				StrategicOutlook: &research.StrategicOutlook{
					SupplySecurity: &research.OutlookDimension{Assessment: "tight", PressureScore: 4},
				},
			},
			"supply": {
				Category: "supply",
				Err:      "No content available for analysis",
			},
		},
	}
}

func TestMarkdownRendersAllSections(t *testing.T) {
	out := Markdown(sampleStore())

	for _, want := range []string{
		"# Market Intelligence Report: steel drums",
		"Workspace: acme",
		"Run: run-42",
		"## pricing",
		"### Executive Summary",
		"Lock in annual contracts now",
		"- Urgency: High",
		"### Validated Insights",
		"**Prices up 12% YoY** (confidence: High)",
		"- price index: +12% (YoY)",
		"### Risk Flags",
		"**Price** (likelihood High, impact Medium)",
		"Sources: https://a.example.com",
		"### Strategic Outlook",
		"**Supply security** (pressure 4/5): tight",
		"## Sources",
		"[Capacity report](https://a.example.com)",
		"[https://b.example.com](https://b.example.com)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestMarkdownFailedCategory(t *testing.T) {
	out := Markdown(sampleStore())
	if !strings.Contains(out, "## supply") {
		t.Fatalf("failed category heading missing")
	}
	if !strings.Contains(out, "_Analysis unavailable: No content available for analysis_") {
		t.Fatalf("failed category not marked unavailable:\n%s", out)
	}
}

func TestMarkdownCategoriesSorted(t *testing.T) {
	out := Markdown(sampleStore())
	if strings.Index(out, "## pricing") > strings.Index(out, "## supply") {
		t.Fatalf("categories not sorted")
	}
}
