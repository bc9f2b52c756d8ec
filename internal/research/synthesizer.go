package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/procurelens/marketintel/config"
	"github.com/procurelens/marketintel/internal/helpers"
)

// ErrNoContent is the analysis error recorded when a category has no
// documents to work with. It is data, not a pipeline failure.
const ErrNoContent = "No content available for analysis"

// promptContentCap bounds how much of each document enters a prompt.
const promptContentCap = 3000

// UsageRecorder receives token and cost accounting from LLM calls.
type UsageRecorder interface {
	RecordLLMUsage(model string, inputTokens, outputTokens int64, cost float64)
}

// Synthesizer runs the analytical passes for one category over the shared
// scraped corpus. The three passes are independent: one failing pass leaves
// its sections empty without aborting the others.
type Synthesizer struct {
	cfg    *config.Config
	llm    LLMProvider
	usage  UsageRecorder
	logger *log.Logger
}

func NewSynthesizer(cfg *config.Config, llm LLMProvider, usage UsageRecorder, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[SYNTH] ", log.LstdFlags)
	}
	return &Synthesizer{cfg: cfg, llm: llm, usage: usage, logger: logger}
}

// Analyze produces the merged analysis for one category. An empty corpus
// short-circuits before any model call.
func (s *Synthesizer) Analyze(ctx context.Context, category, market string, docs []ScrapedDocument) CategoryAnalysis {
	analysis := CategoryAnalysis{Category: category}

	corpus := usableDocs(docs)
	if len(corpus) == 0 {
		analysis.Err = ErrNoContent
		return analysis
	}

	if err := s.crossValidate(ctx, &analysis, category, market, corpus); err != nil {
		s.logger.Printf("cross-validation pass failed for %q: %v", category, err)
	}
	if err := s.synthesize(ctx, &analysis, category, market, corpus); err != nil {
		s.logger.Printf("synthesis pass failed for %q: %v", category, err)
	}
	if err := s.actionable(ctx, &analysis, category, market, corpus); err != nil {
		s.logger.Printf("actionable pass failed for %q: %v", category, err)
	}

	helpers.SanitizeStruct(&analysis)
	backfillSourceURLs(&analysis, corpus)
	applyDefaults(&analysis)
	return analysis
}

func usableDocs(docs []ScrapedDocument) []ScrapedDocument {
	out := make([]ScrapedDocument, 0, len(docs))
	for _, d := range docs {
		if d.Success && strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out
}

func (s *Synthesizer) model(route string) string {
	if route != "" {
		return route
	}
	return s.cfg.LLM.Routing.Fallback
}

func (s *Synthesizer) generate(ctx context.Context, pass, prompt, system, model string, out any) error {
	text, inTok, outTok, err := s.llm.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.2,
		"system":      system,
		"json":        true,
	})
	if s.usage != nil && (inTok > 0 || outTok > 0) {
		s.usage.RecordLLMUsage(model, inTok, outTok, s.llm.CalculateCost(inTok, outTok, model))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", pass, err)
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(text)), out); err != nil {
		return fmt.Errorf("%s: parse: %w", pass, err)
	}
	return nil
}

func (s *Synthesizer) crossValidate(ctx context.Context, analysis *CategoryAnalysis, category, market string, docs []ScrapedDocument) error {
	var parsed struct {
		Insights    []Insight    `json:"insights"`
		DataQuality *DataQuality `json:"data_quality"`
	}
	prompt := fmt.Sprintf(`Analyze the following market intelligence from multiple sources and extract SPECIFIC QUANTITATIVE DATA.

Category: %s
Market: %s

Sources:
%s

Focus on actual numbers: market size, growth rates, pricing, tender values, capacity, market share.
Note where sources confirm or contradict each other.
Return ONLY strict JSON:
{
  "insights": [ { "headline": string, "explanation": string, "evidence": string, "confidence": "High|Medium|Low", "sources_count": number, "contradictions": string, "source_urls": [string], "source_domains": [string], "key_metrics": [ { "metric": string, "value": string, "context": string } ] } ],
  "data_quality": { "total_sources": number, "unique_domains": number, "information_gaps": [string], "conflicting_data": [string], "confidence_score": number 0..1 }
}`, category, market, sourceContext(docs, true))
	if err := s.generate(ctx, "cross-validation", prompt,
		"You are a market intelligence analyst specializing in cross-validation of information from multiple sources.",
		s.model(s.cfg.LLM.Routing.Analysis), &parsed); err != nil {
		return err
	}
	analysis.Insights = parsed.Insights
	analysis.DataQuality = parsed.DataQuality
	return nil
}

func (s *Synthesizer) synthesize(ctx context.Context, analysis *CategoryAnalysis, category, market string, docs []ScrapedDocument) error {
	var parsed struct {
		MarketDynamics          *MarketDynamics          `json:"market_dynamics"`
		CompetitiveIntelligence *CompetitiveIntelligence `json:"competitive_intelligence"`
		StrategicImplications   *StrategicImplications   `json:"strategic_implications"`
	}
	prompt := fmt.Sprintf(`Synthesize the following market intelligence and extract QUANTITATIVE DATA for strategic insights.

Category: %s
Market: %s

Content:
%s

Return ONLY strict JSON:
{
  "market_dynamics": { "key_trends": [ { "trend": string, "quantitative_data": string, "source_evidence": string } ], "market_drivers": [ { "driver": string, "quantitative_impact": string, "source_evidence": string } ], "disruption_signals": [ { "signal": string, "quantitative_indicator": string, "source_evidence": string } ] },
  "competitive_intelligence": { "market_concentration": "High|Medium|Low", "competitive_pressure": "Increasing|Stable|Decreasing", "innovation_activity": "High|Medium|Low", "entry_barriers": [string], "competitive_metrics": [ { "metric": string, "value": string, "company": string, "source": string } ] },
  "strategic_implications": { "market_opportunities": [ { "opportunity": string, "value_potential": string, "recommended_action": string } ], "threat_assessment": [ { "threat": string, "quantitative_impact": string, "source_evidence": string } ], "timing_considerations": string }
}`, category, market, sourceContext(docs, false))
	if err := s.generate(ctx, "synthesis", prompt,
		"You are a strategic intelligence analyst specializing in market synthesis and pattern recognition.",
		s.model(s.cfg.LLM.Routing.Synthesis), &parsed); err != nil {
		return err
	}
	analysis.MarketDynamics = parsed.MarketDynamics
	analysis.CompetitiveIntelligence = parsed.CompetitiveIntelligence
	analysis.StrategicImplications = parsed.StrategicImplications
	return nil
}

func (s *Synthesizer) actionable(ctx context.Context, analysis *CategoryAnalysis, category, market string, docs []ScrapedDocument) error {
	var parsed struct {
		ExecutiveSummary         *ExecutiveSummary         `json:"executive_summary"`
		StrategicOutlook         *StrategicOutlook         `json:"strategic_outlook"`
		RiskFlags                []RiskFlag                `json:"risk_flags"`
		MarketOpportunities      []MarketOpportunity       `json:"market_opportunities"`
		KeyTrends                []KeyTrend                `json:"key_trends"`
		StrategicRecommendations []StrategicRecommendation `json:"strategic_recommendations"`
	}
	prompt := fmt.Sprintf(`Generate actionable intelligence for procurement decision-making with QUANTITATIVE DATA.

Category: %s
Market: %s

Content:
%s

Return ONLY strict JSON:
{
  "executive_summary": { "key_recommendation": string, "urgency_level": "High|Medium|Low", "decision_window": string, "confidence_level": "High|Medium|Low" },
  "strategic_outlook": {
    "supply_security": { "assessment": string, "pressure_score": 1-5, "suggested_play": string, "timeline": string },
    "supplier_ecosystem": { "assessment": string, "pressure_score": 1-5, "suggested_play": string, "timeline": string },
    "innovation_levers": { "assessment": string, "pressure_score": 1-5, "suggested_play": string, "timeline": string }
  },
  "risk_flags": [ { "risk_type": "Supply|Demand|Price|Regulatory", "description": string, "likelihood": "High|Medium|Low", "impact": "High|Medium|Low", "mitigation": string } ],
  "market_opportunities": [ { "opportunity": string, "value_potential": "High|Medium|Low", "implementation_complexity": "High|Medium|Low", "recommended_action": string } ],
  "key_trends": [ { "trend": string, "quantitative_data": string, "source_evidence": string } ],
  "strategic_recommendations": [ { "recommendation": string, "priority": "High|Medium|Low", "timeline": string } ]
}`, category, market, sourceContext(docs, false))
	if err := s.generate(ctx, "actionable", prompt,
		"You are a procurement intelligence specialist focused on generating actionable business intelligence.",
		s.model(s.cfg.LLM.Routing.Analysis), &parsed); err != nil {
		return err
	}
	analysis.ExecutiveSummary = parsed.ExecutiveSummary
	analysis.StrategicOutlook = parsed.StrategicOutlook
	analysis.RiskFlags = parsed.RiskFlags
	analysis.MarketOpportunities = parsed.MarketOpportunities
	analysis.KeyTrends = parsed.KeyTrends
	analysis.StrategicRecommendations = parsed.StrategicRecommendations
	return nil
}

func sourceContext(docs []ScrapedDocument, withDomains bool) string {
	var b strings.Builder
	for _, d := range docs {
		content := d.Content
		if len(content) > promptContentCap {
			content = content[:promptContentCap]
		}
		fmt.Fprintf(&b, "Source: %s\n", d.URL)
		if withDomains {
			fmt.Fprintf(&b, "Domain: %s\n", helpers.DomainOf(d.URL))
		}
		fmt.Fprintf(&b, "Content: %s\n\n", content)
	}
	return b.String()
}

// backfillSourceURLs attaches the first two distinct document URLs to list
// sections that support citations when the model omitted them.
func backfillSourceURLs(analysis *CategoryAnalysis, docs []ScrapedDocument) {
	urls := firstURLs(docs, 2)
	if len(urls) == 0 {
		return
	}
	for i := range analysis.KeyTrends {
		if len(analysis.KeyTrends[i].SourceURLs) == 0 {
			analysis.KeyTrends[i].SourceURLs = append([]string(nil), urls...)
		}
	}
	if analysis.MarketDynamics != nil {
		for i := range analysis.MarketDynamics.KeyTrends {
			if len(analysis.MarketDynamics.KeyTrends[i].SourceURLs) == 0 {
				analysis.MarketDynamics.KeyTrends[i].SourceURLs = append([]string(nil), urls...)
			}
		}
	}
	for i := range analysis.MarketOpportunities {
		if len(analysis.MarketOpportunities[i].SourceURLs) == 0 {
			analysis.MarketOpportunities[i].SourceURLs = append([]string(nil), urls...)
		}
	}
	for i := range analysis.RiskFlags {
		if len(analysis.RiskFlags[i].SourceURLs) == 0 {
			analysis.RiskFlags[i].SourceURLs = append([]string(nil), urls...)
		}
	}
	for i := range analysis.StrategicRecommendations {
		if len(analysis.StrategicRecommendations[i].SourceURLs) == 0 {
			analysis.StrategicRecommendations[i].SourceURLs = append([]string(nil), urls...)
		}
	}
}

func firstURLs(docs []ScrapedDocument, n int) []string {
	seen := make(map[string]bool, n)
	var urls []string
	for _, d := range docs {
		if d.URL == "" || seen[d.URL] {
			continue
		}
		seen[d.URL] = true
		urls = append(urls, d.URL)
		if len(urls) >= n {
			break
		}
	}
	return urls
}

// applyDefaults fills enum-like fields the model left blank.
func applyDefaults(analysis *CategoryAnalysis) {
	for i := range analysis.Insights {
		if analysis.Insights[i].Confidence == "" {
			analysis.Insights[i].Confidence = "Medium"
		}
	}
	if es := analysis.ExecutiveSummary; es != nil {
		if es.UrgencyLevel == "" {
			es.UrgencyLevel = "Medium"
		}
		if es.ConfidenceLevel == "" {
			es.ConfidenceLevel = "Medium"
		}
	}
	for i := range analysis.RiskFlags {
		if analysis.RiskFlags[i].Likelihood == "" {
			analysis.RiskFlags[i].Likelihood = "Medium"
		}
		if analysis.RiskFlags[i].Impact == "" {
			analysis.RiskFlags[i].Impact = "Medium"
		}
	}
}
