package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/procurelens/marketintel/config"
)

// Package-level collectors registered once against the default registry,
// which the server exposes on /metrics.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_runs_total",
		Help: "Research runs by terminal state.",
	}, []string{"state"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketintel_run_duration_seconds",
		Help:    "Wall-clock duration of research runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_searches_total",
		Help: "Search gateway calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_fetches_total",
		Help: "Content fetches by outcome.",
	}, []string{"outcome"})

	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_llm_tokens_total",
		Help: "LLM tokens consumed by model and direction.",
	}, []string{"model", "direction"})

	llmCostTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketintel_llm_cost_dollars_total",
		Help: "Estimated LLM spend by model.",
	}, []string{"model"})
)

// Telemetry aggregates run metrics and LLM cost accounting.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu          sync.RWMutex
	totalTokens int64
	totalCost   float64
	modelCosts  map[string]float64
}

func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config:     cfg,
		logger:     log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		modelCosts: make(map[string]float64),
	}
}

// RecordLLMUsage accounts one model call. Safe for concurrent use.
func (t *Telemetry) RecordLLMUsage(model string, inputTokens, outputTokens int64, cost float64) {
	if !t.config.Enabled {
		return
	}
	llmTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	llmTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	llmCostTotal.WithLabelValues(model).Add(cost)

	if !t.config.CostTracking {
		return
	}
	t.mu.Lock()
	t.totalTokens += inputTokens + outputTokens
	t.totalCost += cost
	t.modelCosts[model] += cost
	t.mu.Unlock()
}

// RecordRunFinished records a terminal run state and its duration.
func (t *Telemetry) RecordRunFinished(state string, duration time.Duration) {
	if !t.config.Enabled {
		return
	}
	runsTotal.WithLabelValues(state).Inc()
	runDuration.Observe(duration.Seconds())
	if t.config.PeriodicLogs {
		t.logger.Printf("run finished: state=%s duration=%v", state, duration)
	}
}

// RecordSearch counts one search gateway call.
func (t *Telemetry) RecordSearch(provider string, failed bool) {
	if !t.config.Enabled {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	searchesTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordFetch counts one fetch attempt.
func (t *Telemetry) RecordFetch(success bool) {
	if !t.config.Enabled {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	fetchesTotal.WithLabelValues(outcome).Inc()
}

// Totals returns accumulated token and cost figures.
func (t *Telemetry) Totals() (int64, float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalTokens, t.totalCost
}

// CostByModel returns a copy of the per-model spend map.
func (t *Telemetry) CostByModel() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.modelCosts))
	for k, v := range t.modelCosts {
		out[k] = v
	}
	return out
}
