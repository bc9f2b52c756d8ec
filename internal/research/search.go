package research

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/procurelens/marketintel/config"
)

// GoogleClient implements SearchProvider using the Google Custom Search API.
type GoogleClient struct {
	cfg  config.SearchConfig
	http *HTTPClient
}

func (g *GoogleClient) Name() string { return "google" }

func (g *GoogleClient) Search(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	if numResults <= 0 {
		numResults = 10
	}
	if numResults > 10 {
		numResults = 10 // CSE hard limit per request
	}
	q, dateRestrict := splitAfterFilter(query, time.Now())

	var resp struct {
		Items []struct {
			Title       string `json:"title"`
			Link        string `json:"link"`
			Snippet     string `json:"snippet"`
			DisplayLink string `json:"displayLink"`
		} `json:"items"`
	}
	endpoint := fmt.Sprintf("https://www.googleapis.com/customsearch/v1?key=%s&cx=%s&q=%s&num=%d",
		url.QueryEscape(g.cfg.GoogleAPIKey), url.QueryEscape(g.cfg.GoogleCSEID), url.QueryEscape(q), numResults)
	if dateRestrict != "" {
		endpoint += "&dateRestrict=" + dateRestrict
	}
	if err := g.http.DoJSON(ctx, "GET", endpoint, nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, SearchResult{Title: it.Title, URL: it.Link, Snippet: it.Snippet, DisplayDomain: it.DisplayLink})
	}
	return out, nil
}

// splitAfterFilter removes a trailing "after:YYYY-MM-DD" operator from the
// query and converts it to the CSE dateRestrict form (dN days).
func splitAfterFilter(query string, now time.Time) (string, string) {
	fields := strings.Fields(query)
	for i, f := range fields {
		if !strings.HasPrefix(f, "after:") {
			continue
		}
		cutoff, err := time.Parse("2006-01-02", strings.TrimPrefix(f, "after:"))
		rest := strings.Join(append(append([]string{}, fields[:i]...), fields[i+1:]...), " ")
		if err != nil {
			return rest, ""
		}
		days := int(now.Sub(cutoff).Hours() / 24)
		if days < 1 {
			days = 1
		}
		return rest, fmt.Sprintf("d%d", days)
	}
	return query, ""
}

// SerperClient implements SearchProvider using serper.dev.
type SerperClient struct {
	cfg  config.SearchConfig
	http *HTTPClient
}

func (s *SerperClient) Name() string { return "serper" }

func (s *SerperClient) Search(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	if numResults <= 0 {
		numResults = 10
	}
	var resp struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": s.cfg.SerperAPIKey}
	body := map[string]any{"q": query, "num": numResults}
	if err := s.http.DoJSON(ctx, "POST", "https://google.serper.dev/search", headers, body, &resp); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		out = append(out, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet, DisplayDomain: domainOf(r.Link)})
	}
	return out, nil
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

// NewSearchProvider builds the configured provider over a shared HTTP client.
func NewSearchProvider(cfg config.SearchConfig) (SearchProvider, error) {
	httpc := NewHTTPClient(cfg.Timeout, cfg.MaxRetries, 300*time.Millisecond)
	switch cfg.Provider {
	case "", "google":
		return &GoogleClient{cfg: cfg, http: httpc}, nil
	case "serper":
		return &SerperClient{cfg: cfg, http: httpc}, nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
}

// Gateway wraps a SearchProvider with the pipeline's failure policy: a failed
// search yields an empty result set, the cause is logged and counted but never
// propagated to the caller.
type Gateway struct {
	provider SearchProvider
	logger   *log.Logger
	onError  func(provider string, err error)
}

func NewGateway(provider SearchProvider, logger *log.Logger, onError func(provider string, err error)) *Gateway {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &Gateway{provider: provider, logger: logger, onError: onError}
}

// Run executes one query. The returned slice is empty on failure; callers
// cannot distinguish a failed search from one with no hits, which keeps a
// single bad query from poisoning a run.
func (g *Gateway) Run(ctx context.Context, query string, numResults int) []SearchResult {
	results, err := g.provider.Search(ctx, query, numResults)
	if err != nil {
		g.logger.Printf("search %q via %s failed: %v", query, g.provider.Name(), err)
		if g.onError != nil {
			g.onError(g.provider.Name(), err)
		}
		return nil
	}
	// providers are asked for numResults but not all of them honour it
	if numResults > 0 && len(results) > numResults {
		results = results[:numResults]
	}
	return results
}
