package research

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procurelens/marketintel/config"
	"github.com/procurelens/marketintel/internal/helpers"
	"github.com/procurelens/marketintel/internal/telemetry"
)

// Store persists run statuses and completed intelligence stores.
type Store interface {
	SaveRunStatus(ctx context.Context, status RunStatus) error
	SaveIntelligenceStore(ctx context.Context, store IntelligenceStore) error
}

// DocumentIndexer receives the scraped corpus of a run for full-text search.
type DocumentIndexer interface {
	IndexRun(workspace, runID string, docs []ScrapedDocument) error
}

// Orchestrator drives the research workflow state machine:
// idle -> planning -> searching -> fetching -> analyzing -> complete|failed.
// Failed is reserved for infrastructure errors; runs whose searches or
// analyses come back empty still complete, carrying their empty results.
type Orchestrator struct {
	cfg     *config.Config
	llm     LLMProvider
	planner *Planner
	gateway *Gateway
	fetcher Fetcher
	tele    *telemetry.Telemetry
	store   Store
	indexer DocumentIndexer
	logger  *log.Logger

	mu       sync.RWMutex
	statuses map[string]*RunStatus
}

func NewOrchestrator(cfg *config.Config, llm LLMProvider, provider SearchProvider, fetcher Fetcher, tele *telemetry.Telemetry, store Store, indexer DocumentIndexer, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	o := &Orchestrator{
		cfg:      cfg,
		llm:      llm,
		planner:  NewPlanner(cfg, llm, nil),
		fetcher:  fetcher,
		tele:     tele,
		store:    store,
		indexer:  indexer,
		logger:   logger,
		statuses: make(map[string]*RunStatus),
	}
	o.gateway = NewGateway(provider, nil, func(name string, err error) {
		if tele != nil {
			tele.RecordSearch(name, true)
		}
	})
	return o
}

// Status returns a snapshot of a run's progress.
func (o *Orchestrator) Status(runID string) (RunStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.statuses[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

func (o *Orchestrator) updateStatus(runID string, fn func(*RunStatus)) {
	o.mu.Lock()
	st, ok := o.statuses[runID]
	if !ok {
		o.mu.Unlock()
		return
	}
	fn(st)
	snapshot := *st
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.SaveRunStatus(context.Background(), snapshot); err != nil {
			o.logger.Printf("persist status %s: %v", runID, err)
		}
	}
}

// runUsage forwards LLM accounting to telemetry while keeping per-run totals.
type runUsage struct {
	tele *telemetry.Telemetry

	mu     sync.Mutex
	tokens int64
	cost   float64
}

func (u *runUsage) RecordLLMUsage(model string, inTok, outTok int64, cost float64) {
	if u.tele != nil {
		u.tele.RecordLLMUsage(model, inTok, outTok, cost)
	}
	u.mu.Lock()
	u.tokens += inTok + outTok
	u.cost += cost
	u.mu.Unlock()
}

func (u *runUsage) totals() (int64, float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tokens, u.cost
}

func validateRequest(req ResearchRequest) error {
	if req.Workspace == "" {
		return fmt.Errorf("workspace is required")
	}
	if req.Market == "" {
		return fmt.Errorf("market is required")
	}
	if len(req.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	return nil
}

func (o *Orchestrator) newRun(req ResearchRequest) (string, time.Time) {
	runID := uuid.NewString()
	started := time.Now()
	o.mu.Lock()
	o.statuses[runID] = &RunStatus{ID: runID, Workspace: req.Workspace, State: StateIdle, StartedAt: started}
	o.mu.Unlock()
	return runID, started
}

// Execute runs the full workflow for one request and returns the completed
// intelligence store. The returned store replaces the workspace's previous
// store wholesale.
func (o *Orchestrator) Execute(ctx context.Context, req ResearchRequest) (IntelligenceStore, error) {
	if err := validateRequest(req); err != nil {
		return IntelligenceStore{}, err
	}
	runID, started := o.newRun(req)
	return o.run(ctx, runID, req, started)
}

// Submit validates the request and starts the run in the background, returning
// its id for status polling.
func (o *Orchestrator) Submit(ctx context.Context, req ResearchRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	runID, started := o.newRun(req)
	go func() {
		if _, err := o.run(ctx, runID, req, started); err != nil {
			o.logger.Printf("run %s failed: %v", runID, err)
		}
	}()
	return runID, nil
}

func (o *Orchestrator) run(ctx context.Context, runID string, req ResearchRequest, started time.Time) (IntelligenceStore, error) {
	store, err := o.execute(ctx, runID, req)
	elapsed := time.Since(started)
	if err != nil {
		o.updateStatus(runID, func(st *RunStatus) {
			st.State = StateFailed
			st.Error = err.Error()
			st.FinishedAt = time.Now()
		})
		if o.tele != nil {
			o.tele.RecordRunFinished(string(StateFailed), elapsed)
		}
		return IntelligenceStore{}, err
	}

	o.updateStatus(runID, func(st *RunStatus) {
		st.State = StateComplete
		st.FinishedAt = time.Now()
	})
	if o.tele != nil {
		o.tele.RecordRunFinished(string(StateComplete), elapsed)
	}
	o.logger.Printf("run %s complete: %d queries, %d documents, %d categories in %v",
		runID, len(store.Queries), len(store.Documents), len(store.Analyses), elapsed)
	return store, nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, req ResearchRequest) (IntelligenceStore, error) {
	depth := DepthConfigFor(req.Depth)
	timeFilter := TimeFilterFor(req.TimeWindow, time.Now())

	// Planning
	o.updateStatus(runID, func(st *RunStatus) { st.State = StatePlanning })
	var queries []ResearchQuery
	for _, category := range req.Categories {
		queries = append(queries, o.planner.PlanQueries(ctx, category, req.Market, depth.NumQueries, timeFilter)...)
	}
	// the query budget is global across categories
	queries = CapQueries(queries, depth.NumQueries)
	o.updateStatus(runID, func(st *RunStatus) { st.QueriesPlanned = len(queries) })
	if err := ctx.Err(); err != nil {
		return IntelligenceStore{}, err
	}

	// Searching: sequential, one provider call per query. Failed searches
	// contribute nothing and do not abort the run.
	o.updateStatus(runID, func(st *RunStatus) { st.State = StateSearching })
	var results []SearchResult
	for _, q := range queries {
		hits := o.gateway.Run(ctx, q.Query, depth.NumResults)
		if len(hits) > 0 && o.tele != nil {
			o.tele.RecordSearch(o.gateway.provider.Name(), false)
		}
		o.updateStatus(runID, func(st *RunStatus) {
			st.SearchesDone++
			if len(hits) == 0 {
				st.SearchesFailed++
			}
		})
		results = append(results, hits...)
		if err := ctx.Err(); err != nil {
			return IntelligenceStore{}, err
		}
	}

	// Fetching: first 2 x num_results unique links across all results, shared
	// by every category's analysis.
	o.updateStatus(runID, func(st *RunStatus) { st.State = StateFetching })
	links := make([]string, 0, len(results))
	for _, r := range results {
		links = append(links, r.URL)
	}
	links = helpers.UniqueURLs(links)
	if limit := depth.NumResults * 2; len(links) > limit {
		links = links[:limit]
	}
	pool := NewFetchPool(o.fetcher, depth.NumWorkers, o.cfg.Fetcher.Delay, nil, func(url string, err error) {
		if o.tele != nil {
			o.tele.RecordFetch(false)
		}
		o.updateStatus(runID, func(st *RunStatus) { st.FetchesFailed++ })
	})
	docs := pool.FetchAll(ctx, links)
	if o.tele != nil {
		for range docs {
			o.tele.RecordFetch(true)
		}
	}
	o.updateStatus(runID, func(st *RunStatus) { st.DocumentsFetched = len(docs) })
	if err := ctx.Err(); err != nil {
		return IntelligenceStore{}, err
	}

	if o.indexer != nil && o.cfg.Fetcher.IndexContent {
		if err := o.indexer.IndexRun(req.Workspace, runID, docs); err != nil {
			o.logger.Printf("index run %s: %v", runID, err)
		}
	}

	// Analyzing: every category sees the same scraped corpus. A category
	// whose analysis fails records its error object; the others proceed.
	o.updateStatus(runID, func(st *RunStatus) { st.State = StateAnalyzing })
	usage := &runUsage{tele: o.tele}
	synth := NewSynthesizer(o.cfg, o.llm, usage, nil)
	analyses := make(map[string]CategoryAnalysis, len(req.Categories))
	for _, category := range req.Categories {
		analyses[category] = synth.Analyze(ctx, category, req.Market, docs)
		o.updateStatus(runID, func(st *RunStatus) { st.CategoriesDone++ })
		if err := ctx.Err(); err != nil {
			return IntelligenceStore{}, err
		}
	}

	tokens, cost := usage.totals()
	store := IntelligenceStore{
		Workspace:   req.Workspace,
		Market:      req.Market,
		RunID:       runID,
		GeneratedAt: time.Now(),
		Queries:     queries,
		Documents:   docs,
		Analyses:    analyses,
		TokensUsed:  tokens,
		Cost:        cost,
	}
	if o.store != nil {
		if err := o.store.SaveIntelligenceStore(ctx, store); err != nil {
			return IntelligenceStore{}, fmt.Errorf("persist intelligence store: %w", err)
		}
	}
	return store, nil
}
