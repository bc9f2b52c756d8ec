// Package index maintains an in-process full-text index over the scraped
// corpus of each workspace's latest run, backing the evidence-search API.
package index

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/procurelens/marketintel/internal/research"
)

type indexedDoc struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	RunID   string `json:"run_id"`
}

// Hit is one evidence-search match.
type Hit struct {
	URL       string              `json:"url"`
	Title     string              `json:"title"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// EvidenceIndex holds one memory-only bleve index per workspace. A new run
// replaces the workspace's index wholesale, mirroring the intelligence store.
type EvidenceIndex struct {
	mu      sync.RWMutex
	indexes map[string]bleve.Index
	titles  map[string]map[string]indexedDoc // workspace -> url -> doc meta
}

func NewEvidenceIndex() *EvidenceIndex {
	return &EvidenceIndex{
		indexes: make(map[string]bleve.Index),
		titles:  make(map[string]map[string]indexedDoc),
	}
}

// IndexRun builds a fresh index from the run's successful documents and swaps
// it in for the workspace.
func (e *EvidenceIndex) IndexRun(workspace, runID string, docs []research.ScrapedDocument) error {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	meta := make(map[string]indexedDoc, len(docs))
	for _, d := range docs {
		if !d.Success || d.URL == "" {
			continue
		}
		doc := indexedDoc{URL: d.URL, Title: d.Title, Content: d.Content, RunID: runID}
		if err := idx.Index(d.URL, doc); err != nil {
			return fmt.Errorf("index %s: %w", d.URL, err)
		}
		meta[d.URL] = doc
	}

	e.mu.Lock()
	if old, ok := e.indexes[workspace]; ok {
		_ = old.Close()
	}
	e.indexes[workspace] = idx
	e.titles[workspace] = meta
	e.mu.Unlock()
	return nil
}

// Search runs a query-string search over a workspace's latest corpus.
func (e *EvidenceIndex) Search(workspace, q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	e.mu.RLock()
	idx, ok := e.indexes[workspace]
	meta := e.titles[workspace]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no index for workspace %q", workspace)
	}

	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	res, err := idx.Search(req)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{URL: h.ID, Score: h.Score, Fragments: h.Fragments}
		if d, ok := meta[h.ID]; ok {
			hit.Title = d.Title
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
