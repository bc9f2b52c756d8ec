package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/procurelens/marketintel/config"
	"github.com/procurelens/marketintel/internal/telemetry"
)

type memStore struct {
	mu       sync.Mutex
	statuses []RunStatus
	stores   []IntelligenceStore
	saveErr  error
}

func (m *memStore) SaveRunStatus(ctx context.Context, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memStore) SaveIntelligenceStore(ctx context.Context, store IntelligenceStore) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = append(m.stores, store)
	return nil
}

type memIndexer struct {
	mu        sync.Mutex
	workspace string
	runID     string
	docs      []ScrapedDocument
}

func (m *memIndexer) IndexRun(workspace, runID string, docs []ScrapedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspace = workspace
	m.runID = runID
	m.docs = docs
	return nil
}

func orchestratorConfig() *config.Config {
	cfg := plannerConfig()
	cfg.Fetcher = config.FetcherConfig{IndexContent: true}
	cfg.Telemetry = config.TelemetryConfig{Enabled: true, CostTracking: true}
	return cfg
}

func newTestOrchestrator(cfg *config.Config, llm LLMProvider, provider SearchProvider, fetcher Fetcher, store Store, indexer DocumentIndexer) *Orchestrator {
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	return NewOrchestrator(cfg, llm, provider, fetcher, tele, store, indexer, log.New(log.Writer(), "[ORCH] ", 0))
}

func TestExecuteHappyPath(t *testing.T) {
	llm := &fnLLM{fn: func(string) (string, error) { return allPassesBlob, nil }}
	provider := &stubSearchProvider{results: map[string][]SearchResult{}}
	fetcher := &stubFetcher{}
	store := &memStore{}
	indexer := &memIndexer{}

	orch := newTestOrchestrator(orchestratorConfig(), llm, provider, fetcher, store, indexer)
	// every query hits the same two pages plus one dead link
	orch.gateway = NewGateway(&fixedSearchProvider{hits: []SearchResult{
		{Title: "one", URL: "https://good.example.com/one"},
		{Title: "two", URL: "https://good.example.com/two"},
		{Title: "dead", URL: "https://bad.example.com/dead"},
	}}, log.New(log.Writer(), "[SEARCH] ", 0), nil)

	req := ResearchRequest{
		Workspace:  "acme",
		Market:     "steel drums",
		Categories: []string{"pricing", "supply_risk"},
		Depth:      DepthQuick,
	}
	result, err := orch.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(result.Queries) != 5 {
		t.Fatalf("quick depth caps the global plan at 5, got %d", len(result.Queries))
	}
	if len(result.Documents) != 2 {
		t.Fatalf("expected 2 deduplicated successful documents, got %d", len(result.Documents))
	}
	if len(result.Analyses) != 2 {
		t.Fatalf("expected one analysis per category, got %d", len(result.Analyses))
	}
	for _, category := range req.Categories {
		a, ok := result.Analyses[category]
		if !ok {
			t.Fatalf("missing analysis for %q", category)
		}
		if a.Err != "" {
			t.Fatalf("analysis %q unexpectedly failed: %s", category, a.Err)
		}
	}
	if result.TokensUsed == 0 || result.Cost == 0 {
		t.Fatalf("usage not accumulated: tokens=%d cost=%f", result.TokensUsed, result.Cost)
	}

	if len(store.stores) != 1 {
		t.Fatalf("expected one persisted store, got %d", len(store.stores))
	}
	if store.stores[0].Workspace != "acme" || store.stores[0].RunID != result.RunID {
		t.Fatalf("persisted store mismatch: %+v", store.stores[0])
	}

	if indexer.workspace != "acme" || indexer.runID != result.RunID || len(indexer.docs) != 2 {
		t.Fatalf("indexer not fed the corpus: %+v", indexer)
	}

	status, ok := orch.Status(result.RunID)
	if !ok {
		t.Fatalf("status missing for run %s", result.RunID)
	}
	if status.State != StateComplete {
		t.Fatalf("state = %s, want %s", status.State, StateComplete)
	}
	if status.QueriesPlanned != 5 || status.DocumentsFetched != 2 || status.FetchesFailed != 1 {
		t.Fatalf("status counters off: %+v", status)
	}
	if status.FinishedAt.IsZero() {
		t.Fatalf("finished_at not set")
	}
}

// fixedSearchProvider returns the same hits for every query.
type fixedSearchProvider struct {
	hits []SearchResult
}

func (f *fixedSearchProvider) Name() string { return "fixed" }

func (f *fixedSearchProvider) Search(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	return f.hits, nil
}

func TestExecuteAllSearchesFailStillCompletes(t *testing.T) {
	llm := &fnLLM{fn: func(string) (string, error) { return allPassesBlob, nil }}
	provider := &stubSearchProvider{err: fmt.Errorf("provider down")}
	store := &memStore{}

	orch := newTestOrchestrator(orchestratorConfig(), llm, provider, &stubFetcher{}, store, nil)

	result, err := orch.Execute(context.Background(), ResearchRequest{
		Workspace:  "acme",
		Market:     "steel drums",
		Categories: []string{"pricing"},
		Depth:      DepthQuick,
	})
	if err != nil {
		t.Fatalf("a run with zero results must still complete, got: %v", err)
	}
	if len(result.Documents) != 0 {
		t.Fatalf("expected empty corpus, got %d docs", len(result.Documents))
	}
	a := result.Analyses["pricing"]
	if a.Err != ErrNoContent {
		t.Fatalf("analysis error = %q, want %q", a.Err, ErrNoContent)
	}

	status, _ := orch.Status(result.RunID)
	if status.State != StateComplete {
		t.Fatalf("state = %s, want %s", status.State, StateComplete)
	}
	if status.SearchesFailed != status.SearchesDone || status.SearchesDone == 0 {
		t.Fatalf("search counters off: %+v", status)
	}
}

func TestExecuteIsDeterministicWithFixedCollaborators(t *testing.T) {
	llm := &fnLLM{fn: func(string) (string, error) { return allPassesBlob, nil }}
	provider := &fixedSearchProvider{hits: []SearchResult{
		{Title: "one", URL: "https://good.example.com/one"},
	}}
	orch := newTestOrchestrator(orchestratorConfig(), llm, provider, &stubFetcher{}, &memStore{}, nil)

	req := ResearchRequest{
		Workspace:  "acme",
		Market:     "steel drums",
		Categories: []string{"pricing", "supply_risk"},
		Depth:      DepthQuick,
	}
	first, err := orch.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	second, err := orch.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}

	a, err := json.Marshal(first.Analyses)
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}
	b, err := json.Marshal(second.Analyses)
	if err != nil {
		t.Fatalf("marshal second: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("same request produced different analyses:\n%s\n%s", a, b)
	}
}

func TestExecuteStorePersistFailureFailsRun(t *testing.T) {
	llm := &fnLLM{fn: func(string) (string, error) { return allPassesBlob, nil }}
	store := &memStore{saveErr: fmt.Errorf("disk full")}

	orch := newTestOrchestrator(orchestratorConfig(), llm, &fixedSearchProvider{hits: []SearchResult{
		{URL: "https://good.example.com/one"},
	}}, &stubFetcher{}, store, nil)

	_, err := orch.Execute(context.Background(), ResearchRequest{
		Workspace:  "acme",
		Market:     "steel drums",
		Categories: []string{"pricing"},
	})
	if err == nil || !strings.Contains(err.Error(), "persist intelligence store") {
		t.Fatalf("expected persist failure, got %v", err)
	}

	var failed bool
	store.mu.Lock()
	for _, st := range store.statuses {
		if st.State == StateFailed && st.Error != "" {
			failed = true
		}
	}
	store.mu.Unlock()
	if !failed {
		t.Fatalf("failed state never persisted")
	}
}

func TestExecuteValidatesRequest(t *testing.T) {
	orch := newTestOrchestrator(orchestratorConfig(), &fnLLM{fn: func(string) (string, error) { return "", nil }},
		&fixedSearchProvider{}, &stubFetcher{}, nil, nil)

	cases := []ResearchRequest{
		{Market: "m", Categories: []string{"c"}},
		{Workspace: "w", Categories: []string{"c"}},
		{Workspace: "w", Market: "m"},
	}
	for i, req := range cases {
		if _, err := orch.Execute(context.Background(), req); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	orch := newTestOrchestrator(orchestratorConfig(), &fnLLM{fn: func(string) (string, error) { return allPassesBlob, nil }},
		&fixedSearchProvider{}, &stubFetcher{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := orch.Execute(ctx, ResearchRequest{Workspace: "w", Market: "m", Categories: []string{"c"}}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestSubmitRunsInBackground(t *testing.T) {
	llm := &fnLLM{fn: func(string) (string, error) { return allPassesBlob, nil }}
	store := &memStore{}
	orch := newTestOrchestrator(orchestratorConfig(), llm, &fixedSearchProvider{hits: []SearchResult{
		{URL: "https://good.example.com/one"},
	}}, &stubFetcher{}, store, nil)

	runID, err := orch.Submit(context.Background(), ResearchRequest{
		Workspace:  "acme",
		Market:     "steel drums",
		Categories: []string{"pricing"},
		Depth:      DepthQuick,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if runID == "" {
		t.Fatalf("empty run id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, ok := orch.Status(runID)
		if ok && (status.State == StateComplete || status.State == StateFailed) {
			if status.State != StateComplete {
				t.Fatalf("background run failed: %s", status.Error)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s never reached a terminal state", runID)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSubmitValidatesBeforeStarting(t *testing.T) {
	orch := newTestOrchestrator(orchestratorConfig(), &fnLLM{fn: func(string) (string, error) { return "", nil }},
		&fixedSearchProvider{}, &stubFetcher{}, nil, nil)
	if _, err := orch.Submit(context.Background(), ResearchRequest{}); err == nil {
		t.Fatalf("expected validation error")
	}
}
