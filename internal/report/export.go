// Package report renders an intelligence store into portable formats.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/procurelens/marketintel/internal/research"
)

// Markdown renders the full intelligence store as a markdown report. Sections
// a category's analysis did not produce are skipped.
func Markdown(store research.IntelligenceStore) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Market Intelligence Report: %s\n\n", store.Market)
	fmt.Fprintf(&b, "Workspace: %s  \n", store.Workspace)
	fmt.Fprintf(&b, "Run: %s  \n", store.RunID)
	fmt.Fprintf(&b, "Generated: %s\n\n", store.GeneratedAt.Format("2006-01-02 15:04 MST"))
	if store.TokensUsed > 0 {
		fmt.Fprintf(&b, "Analysis used %d tokens ($%.4f).\n\n", store.TokensUsed, store.Cost)
	}

	categories := make([]string, 0, len(store.Analyses))
	for c := range store.Analyses {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		analysis := store.Analyses[category]
		fmt.Fprintf(&b, "## %s\n\n", category)
		if analysis.Err != "" {
			fmt.Fprintf(&b, "_Analysis unavailable: %s_\n\n", analysis.Err)
			continue
		}
		writeExecutiveSummary(&b, analysis.ExecutiveSummary)
		writeInsights(&b, analysis.Insights)
		writeMarketDynamics(&b, analysis.MarketDynamics)
		writeCompetitive(&b, analysis.CompetitiveIntelligence)
		writeImplications(&b, analysis.StrategicImplications)
		writeOutlook(&b, analysis.StrategicOutlook)
		writeRisks(&b, analysis.RiskFlags)
		writeOpportunities(&b, "Market Opportunities", analysis.MarketOpportunities)
		writeTrends(&b, analysis.KeyTrends)
		writeRecommendations(&b, analysis.StrategicRecommendations)
		writeDataQuality(&b, analysis.DataQuality)
	}

	if len(store.Documents) > 0 {
		b.WriteString("## Sources\n\n")
		for _, d := range store.Documents {
			title := d.Title
			if title == "" {
				title = d.URL
			}
			fmt.Fprintf(&b, "- [%s](%s)\n", title, d.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeExecutiveSummary(b *strings.Builder, s *research.ExecutiveSummary) {
	if s == nil {
		return
	}
	b.WriteString("### Executive Summary\n\n")
	fmt.Fprintf(b, "%s\n\n", s.KeyRecommendation)
	fmt.Fprintf(b, "- Urgency: %s\n", s.UrgencyLevel)
	if s.DecisionWindow != "" {
		fmt.Fprintf(b, "- Decision window: %s\n", s.DecisionWindow)
	}
	fmt.Fprintf(b, "- Confidence: %s\n\n", s.ConfidenceLevel)
}

func writeInsights(b *strings.Builder, insights []research.Insight) {
	if len(insights) == 0 {
		return
	}
	b.WriteString("### Validated Insights\n\n")
	for _, in := range insights {
		fmt.Fprintf(b, "**%s** (confidence: %s)\n\n", in.Headline, in.Confidence)
		if in.Explanation != "" {
			fmt.Fprintf(b, "%s\n\n", in.Explanation)
		}
		if in.Evidence != "" {
			fmt.Fprintf(b, "Evidence: %s\n\n", in.Evidence)
		}
		for _, m := range in.KeyMetrics {
			fmt.Fprintf(b, "- %s: %s (%s)\n", m.Metric, m.Value, m.Context)
		}
		writeSourceLinks(b, in.SourceURLs)
	}
}

func writeMarketDynamics(b *strings.Builder, md *research.MarketDynamics) {
	if md == nil {
		return
	}
	b.WriteString("### Market Dynamics\n\n")
	for _, t := range md.KeyTrends {
		fmt.Fprintf(b, "- **Trend:** %s", t.Trend)
		if t.QuantitativeData != "" {
			fmt.Fprintf(b, " (%s)", t.QuantitativeData)
		}
		b.WriteString("\n")
	}
	for _, d := range md.MarketDrivers {
		fmt.Fprintf(b, "- **Driver:** %s", d.Driver)
		if d.QuantitativeImpact != "" {
			fmt.Fprintf(b, " (%s)", d.QuantitativeImpact)
		}
		b.WriteString("\n")
	}
	for _, s := range md.DisruptionSignals {
		fmt.Fprintf(b, "- **Disruption signal:** %s", s.Signal)
		if s.QuantitativeIndicator != "" {
			fmt.Fprintf(b, " (%s)", s.QuantitativeIndicator)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeCompetitive(b *strings.Builder, ci *research.CompetitiveIntelligence) {
	if ci == nil {
		return
	}
	b.WriteString("### Competitive Landscape\n\n")
	if ci.MarketConcentration != "" {
		fmt.Fprintf(b, "- Concentration: %s\n", ci.MarketConcentration)
	}
	if ci.CompetitivePressure != "" {
		fmt.Fprintf(b, "- Pressure: %s\n", ci.CompetitivePressure)
	}
	if ci.InnovationActivity != "" {
		fmt.Fprintf(b, "- Innovation: %s\n", ci.InnovationActivity)
	}
	for _, e := range ci.EntryBarriers {
		fmt.Fprintf(b, "- Entry barrier: %s\n", e)
	}
	for _, m := range ci.CompetitiveMetrics {
		fmt.Fprintf(b, "- %s: %s", m.Metric, m.Value)
		if m.Company != "" {
			fmt.Fprintf(b, " [%s]", m.Company)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeImplications(b *strings.Builder, si *research.StrategicImplications) {
	if si == nil {
		return
	}
	b.WriteString("### Strategic Implications\n\n")
	writeOpportunityList(b, si.MarketOpportunities)
	for _, t := range si.ThreatAssessment {
		fmt.Fprintf(b, "- **Threat:** %s", t.Threat)
		if t.QuantitativeImpact != "" {
			fmt.Fprintf(b, " (%s)", t.QuantitativeImpact)
		}
		b.WriteString("\n")
	}
	if si.TimingConsiderations != "" {
		fmt.Fprintf(b, "\nTiming: %s\n", si.TimingConsiderations)
	}
	b.WriteString("\n")
}

func writeOutlook(b *strings.Builder, so *research.StrategicOutlook) {
	if so == nil {
		return
	}
	b.WriteString("### Strategic Outlook\n\n")
	writeOutlookDimension(b, "Supply security", so.SupplySecurity)
	writeOutlookDimension(b, "Supplier ecosystem", so.SupplierEcosystem)
	writeOutlookDimension(b, "Innovation levers", so.InnovationLevers)
	b.WriteString("\n")
}

func writeOutlookDimension(b *strings.Builder, name string, d *research.OutlookDimension) {
	if d == nil {
		return
	}
	fmt.Fprintf(b, "- **%s** (pressure %d/5): %s", name, d.PressureScore, d.Assessment)
	if d.SuggestedPlay != "" {
		fmt.Fprintf(b, " Play: %s.", d.SuggestedPlay)
	}
	b.WriteString("\n")
}

func writeRisks(b *strings.Builder, risks []research.RiskFlag) {
	if len(risks) == 0 {
		return
	}
	b.WriteString("### Risk Flags\n\n")
	for _, r := range risks {
		fmt.Fprintf(b, "- **%s** (likelihood %s, impact %s): %s", r.RiskType, r.Likelihood, r.Impact, r.Description)
		if r.Mitigation != "" {
			fmt.Fprintf(b, " Mitigation: %s", r.Mitigation)
		}
		b.WriteString("\n")
		writeSourceLinks(b, r.SourceURLs)
	}
	b.WriteString("\n")
}

func writeOpportunities(b *strings.Builder, heading string, ops []research.MarketOpportunity) {
	if len(ops) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", heading)
	writeOpportunityList(b, ops)
	b.WriteString("\n")
}

func writeOpportunityList(b *strings.Builder, ops []research.MarketOpportunity) {
	for _, o := range ops {
		fmt.Fprintf(b, "- **Opportunity:** %s", o.Opportunity)
		if o.ValuePotential != "" {
			fmt.Fprintf(b, " (value: %s)", o.ValuePotential)
		}
		if o.RecommendedAction != "" {
			fmt.Fprintf(b, " Action: %s", o.RecommendedAction)
		}
		b.WriteString("\n")
		writeSourceLinks(b, o.SourceURLs)
	}
}

func writeTrends(b *strings.Builder, trends []research.KeyTrend) {
	if len(trends) == 0 {
		return
	}
	b.WriteString("### Key Trends\n\n")
	for _, t := range trends {
		fmt.Fprintf(b, "- %s", t.Trend)
		if t.QuantitativeData != "" {
			fmt.Fprintf(b, " (%s)", t.QuantitativeData)
		}
		b.WriteString("\n")
		writeSourceLinks(b, t.SourceURLs)
	}
	b.WriteString("\n")
}

func writeRecommendations(b *strings.Builder, recs []research.StrategicRecommendation) {
	if len(recs) == 0 {
		return
	}
	b.WriteString("### Strategic Recommendations\n\n")
	for _, r := range recs {
		fmt.Fprintf(b, "- %s", r.Recommendation)
		if r.Priority != "" {
			fmt.Fprintf(b, " (priority: %s", r.Priority)
			if r.Timeline != "" {
				fmt.Fprintf(b, ", timeline: %s", r.Timeline)
			}
			b.WriteString(")")
		} else if r.Timeline != "" {
			fmt.Fprintf(b, " (timeline: %s)", r.Timeline)
		}
		b.WriteString("\n")
		writeSourceLinks(b, r.SourceURLs)
	}
	b.WriteString("\n")
}

func writeDataQuality(b *strings.Builder, dq *research.DataQuality) {
	if dq == nil {
		return
	}
	b.WriteString("### Data Quality\n\n")
	fmt.Fprintf(b, "- Sources: %d across %d domains\n", dq.TotalSources, dq.UniqueDomains)
	fmt.Fprintf(b, "- Confidence score: %.2f\n", dq.ConfidenceScore)
	for _, g := range dq.InformationGaps {
		fmt.Fprintf(b, "- Gap: %s\n", g)
	}
	for _, c := range dq.ConflictingData {
		fmt.Fprintf(b, "- Conflict: %s\n", c)
	}
	b.WriteString("\n")
}

func writeSourceLinks(b *strings.Builder, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(b, "  Sources: %s\n", strings.Join(urls, ", "))
}
