package research

import (
	"context"
	"time"
)

// ResearchQuery is a single planned search query with its analytical framing.
type ResearchQuery struct {
	Query             string `json:"query"`
	Dimension         string `json:"dimension"`
	Rationale         string `json:"rationale"`
	IntelligenceValue string `json:"intelligence_value"`
	Category          string `json:"category"`
}

// SearchResult is one hit returned by a search provider.
type SearchResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet"`
	DisplayDomain string `json:"display_domain"`
}

// ScrapedDocument is the readable text extracted from one result link.
// Only documents with Success=true enter the analysis corpus.
type ScrapedDocument struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Success bool   `json:"success"`
}

// KeyMetric is a quantitative data point attached to an insight.
type KeyMetric struct {
	Metric  string `json:"metric"`
	Value   string `json:"value"`
	Context string `json:"context"`
}

// Insight is a cross-validated finding with supporting evidence.
type Insight struct {
	Headline       string      `json:"headline"`
	Explanation    string      `json:"explanation"`
	Evidence       string      `json:"evidence"`
	Confidence     string      `json:"confidence"`
	SourcesCount   int         `json:"sources_count,omitempty"`
	Contradictions string      `json:"contradictions,omitempty"`
	SourceURLs     []string    `json:"source_urls,omitempty"`
	SourceDomains  []string    `json:"source_domains,omitempty"`
	KeyMetrics     []KeyMetric `json:"key_metrics,omitempty"`
}

// DataQuality summarises coverage and consistency of the source set.
type DataQuality struct {
	TotalSources    int      `json:"total_sources"`
	UniqueDomains   int      `json:"unique_domains"`
	InformationGaps []string `json:"information_gaps,omitempty"`
	ConflictingData []string `json:"conflicting_data,omitempty"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// KeyTrend is a market trend with quantitative backing.
type KeyTrend struct {
	Trend            string   `json:"trend"`
	QuantitativeData string   `json:"quantitative_data,omitempty"`
	SourceEvidence   string   `json:"source_evidence,omitempty"`
	SourceURLs       []string `json:"source_urls,omitempty"`
}

// MarketDriver is a force shaping the market.
type MarketDriver struct {
	Driver             string `json:"driver"`
	QuantitativeImpact string `json:"quantitative_impact,omitempty"`
	SourceEvidence     string `json:"source_evidence,omitempty"`
}

// DisruptionSignal is an early indicator of structural change.
type DisruptionSignal struct {
	Signal                string `json:"signal"`
	QuantitativeIndicator string `json:"quantitative_indicator,omitempty"`
	SourceEvidence        string `json:"source_evidence,omitempty"`
}

// MarketDynamics groups trend-level synthesis output.
type MarketDynamics struct {
	KeyTrends         []KeyTrend         `json:"key_trends,omitempty"`
	MarketDrivers     []MarketDriver     `json:"market_drivers,omitempty"`
	DisruptionSignals []DisruptionSignal `json:"disruption_signals,omitempty"`
}

// CompetitiveMetric is a company-level quantitative observation.
type CompetitiveMetric struct {
	Metric  string `json:"metric"`
	Value   string `json:"value"`
	Company string `json:"company,omitempty"`
	Source  string `json:"source,omitempty"`
}

// CompetitiveIntelligence describes the supplier landscape.
type CompetitiveIntelligence struct {
	MarketConcentration string              `json:"market_concentration,omitempty"`
	CompetitivePressure string              `json:"competitive_pressure,omitempty"`
	InnovationActivity  string              `json:"innovation_activity,omitempty"`
	EntryBarriers       []string            `json:"entry_barriers,omitempty"`
	CompetitiveMetrics  []CompetitiveMetric `json:"competitive_metrics,omitempty"`
}

// MarketOpportunity is an actionable opening in the market.
type MarketOpportunity struct {
	Opportunity              string   `json:"opportunity"`
	ValuePotential           string   `json:"value_potential,omitempty"`
	ImplementationComplexity string   `json:"implementation_complexity,omitempty"`
	RecommendedAction        string   `json:"recommended_action,omitempty"`
	SourceURLs               []string `json:"source_urls,omitempty"`
}

// ThreatAssessment is a quantified threat from the synthesis pass.
type ThreatAssessment struct {
	Threat             string `json:"threat"`
	QuantitativeImpact string `json:"quantitative_impact,omitempty"`
	SourceEvidence     string `json:"source_evidence,omitempty"`
}

// StrategicImplications ties synthesis output to decisions.
type StrategicImplications struct {
	MarketOpportunities  []MarketOpportunity `json:"market_opportunities,omitempty"`
	ThreatAssessment     []ThreatAssessment  `json:"threat_assessment,omitempty"`
	TimingConsiderations string              `json:"timing_considerations,omitempty"`
}

// ExecutiveSummary is the headline recommendation of the actionable pass.
type ExecutiveSummary struct {
	KeyRecommendation string `json:"key_recommendation"`
	UrgencyLevel      string `json:"urgency_level"`
	DecisionWindow    string `json:"decision_window,omitempty"`
	ConfidenceLevel   string `json:"confidence_level"`
}

// OutlookDimension scores one strategic axis from 1 (calm) to 5 (critical).
type OutlookDimension struct {
	Assessment    string `json:"assessment"`
	PressureScore int    `json:"pressure_score"`
	SuggestedPlay string `json:"suggested_play,omitempty"`
	Timeline      string `json:"timeline,omitempty"`
}

// StrategicOutlook covers the three standing outlook axes.
type StrategicOutlook struct {
	SupplySecurity    *OutlookDimension `json:"supply_security,omitempty"`
	SupplierEcosystem *OutlookDimension `json:"supplier_ecosystem,omitempty"`
	InnovationLevers  *OutlookDimension `json:"innovation_levers,omitempty"`
}

// RiskFlag is a categorised risk with mitigation guidance.
type RiskFlag struct {
	RiskType    string   `json:"risk_type"`
	Description string   `json:"description"`
	Likelihood  string   `json:"likelihood"`
	Impact      string   `json:"impact"`
	Mitigation  string   `json:"mitigation,omitempty"`
	SourceURLs  []string `json:"source_urls,omitempty"`
}

// StrategicRecommendation is a category-level recommended move.
type StrategicRecommendation struct {
	Recommendation string   `json:"recommendation"`
	Priority       string   `json:"priority,omitempty"`
	Timeline       string   `json:"timeline,omitempty"`
	SourceURLs     []string `json:"source_urls,omitempty"`
}

// CategoryAnalysis is the merged output of all analysis passes for one
// category. Sections are optional; a pass that fails leaves its sections nil.
// Err is set only when the whole analysis could not run (e.g. empty corpus).
type CategoryAnalysis struct {
	Category                 string                    `json:"category"`
	Err                      string                    `json:"error,omitempty"`
	Insights                 []Insight                 `json:"insights,omitempty"`
	DataQuality              *DataQuality              `json:"data_quality,omitempty"`
	MarketDynamics           *MarketDynamics           `json:"market_dynamics,omitempty"`
	CompetitiveIntelligence  *CompetitiveIntelligence  `json:"competitive_intelligence,omitempty"`
	StrategicImplications    *StrategicImplications    `json:"strategic_implications,omitempty"`
	ExecutiveSummary         *ExecutiveSummary         `json:"executive_summary,omitempty"`
	StrategicOutlook         *StrategicOutlook         `json:"strategic_outlook,omitempty"`
	RiskFlags                []RiskFlag                `json:"risk_flags,omitempty"`
	MarketOpportunities      []MarketOpportunity       `json:"market_opportunities,omitempty"`
	KeyTrends                []KeyTrend                `json:"key_trends,omitempty"`
	StrategicRecommendations []StrategicRecommendation `json:"strategic_recommendations,omitempty"`
}

// IntelligenceStore is the aggregate produced by one completed run. A new run
// replaces the previous store for the workspace wholesale.
type IntelligenceStore struct {
	Workspace   string                      `json:"workspace"`
	Market      string                      `json:"market"`
	RunID       string                      `json:"run_id"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Queries     []ResearchQuery             `json:"queries,omitempty"`
	Documents   []ScrapedDocument           `json:"documents,omitempty"`
	Analyses    map[string]CategoryAnalysis `json:"analyses"`
	TokensUsed  int64                       `json:"tokens_used,omitempty"`
	Cost        float64                     `json:"cost,omitempty"`
}

// RunState is the workflow state machine.
type RunState string

const (
	StateIdle      RunState = "idle"
	StatePlanning  RunState = "planning"
	StateSearching RunState = "searching"
	StateFetching  RunState = "fetching"
	StateAnalyzing RunState = "analyzing"
	StateComplete  RunState = "complete"
	StateFailed    RunState = "failed"
)

// RunStatus is the observable progress of a run.
type RunStatus struct {
	ID               string    `json:"id"`
	Workspace        string    `json:"workspace"`
	State            RunState  `json:"state"`
	QueriesPlanned   int       `json:"queries_planned"`
	SearchesDone     int       `json:"searches_done"`
	SearchesFailed   int       `json:"searches_failed"`
	DocumentsFetched int       `json:"documents_fetched"`
	FetchesFailed    int       `json:"fetches_failed"`
	CategoriesDone   int       `json:"categories_done"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at,omitzero"`
	Error            string    `json:"error,omitempty"`
}

// ResearchRequest describes one research run.
type ResearchRequest struct {
	Workspace  string   `json:"workspace"`
	Market     string   `json:"market"`
	Categories []string `json:"categories"`
	Depth      Depth    `json:"depth"`
	TimeWindow string   `json:"time_window,omitempty"` // 6m, 12m, 2y
}

// Depth selects how aggressive a run is.
type Depth string

const (
	DepthQuick  Depth = "quick"
	DepthMedium Depth = "medium"
	DepthDeep   Depth = "deep"
)

// DepthConfig holds the budgets associated with a research depth.
type DepthConfig struct {
	NumQueries int
	NumResults int
	NumWorkers int
}

// DepthConfigFor maps a depth to its budgets. Unknown depths get the medium
// budgets.
func DepthConfigFor(d Depth) DepthConfig {
	switch d {
	case DepthQuick:
		return DepthConfig{NumQueries: 5, NumResults: 5, NumWorkers: 3}
	case DepthDeep:
		return DepthConfig{NumQueries: 20, NumResults: 10, NumWorkers: 8}
	default:
		return DepthConfig{NumQueries: 10, NumResults: 8, NumWorkers: 5}
	}
}

// LLMProvider abstracts the chat-completion backend used by the planner and
// the synthesizer.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)
	GetModelInfo(model string) (ModelInfo, error)
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo describes a configured model.
type ModelInfo struct {
	Name            string
	Provider        string
	MaxTokens       int
	CostPer1KInput  float64
	CostPer1KOutput float64
}

// SearchProvider executes one web search query.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, numResults int) ([]SearchResult, error)
}

// Fetcher retrieves and extracts the readable text of one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (ScrapedDocument, error)
}
