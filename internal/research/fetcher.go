package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/procurelens/marketintel/config"
)

// ReadabilityFetcher extracts article text over plain HTTP. Good enough for
// news and trade-press pages; JS-heavy sites need the chromedp variant.
type ReadabilityFetcher struct {
	Timeout  time.Duration
	MaxChars int
}

func (f *ReadabilityFetcher) Fetch(ctx context.Context, pageURL string) (ScrapedDocument, error) {
	if strings.TrimSpace(pageURL) == "" {
		return ScrapedDocument{}, fmt.Errorf("invalid url")
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	article, err := readability.FromURL(pageURL, timeout)
	if err != nil {
		return ScrapedDocument{URL: pageURL}, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	content := strings.TrimSpace(article.TextContent)
	if content == "" {
		return ScrapedDocument{URL: pageURL}, fmt.Errorf("extract %s: empty content", pageURL)
	}
	if f.MaxChars > 0 && len(content) > f.MaxChars {
		content = content[:f.MaxChars]
	}
	return ScrapedDocument{
		URL:     pageURL,
		Title:   strings.TrimSpace(article.Title),
		Content: content,
		Success: true,
	}, nil
}

// NewFetcher builds the configured fetcher implementation.
func NewFetcher(cfg config.FetcherConfig) (Fetcher, error) {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 5000
	}
	switch cfg.Type {
	case "", "readability":
		return &ReadabilityFetcher{Timeout: cfg.Timeout, MaxChars: maxChars}, nil
	case "chromedp":
		return &ChromedpFetcher{Timeout: cfg.Timeout, MaxChars: maxChars, UserAgent: cfg.UserAgent}, nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type: %s", cfg.Type)
	}
}

// FetchPool runs fetches over a bounded worker pool.
type FetchPool struct {
	fetcher Fetcher
	workers int
	delay   time.Duration
	logger  *log.Logger
	onFail  func(url string, err error)
}

func NewFetchPool(fetcher Fetcher, workers int, delay time.Duration, logger *log.Logger, onFail func(url string, err error)) *FetchPool {
	if workers <= 0 {
		workers = 5
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	}
	return &FetchPool{fetcher: fetcher, workers: workers, delay: delay, logger: logger, onFail: onFail}
}

// FetchAll fetches all URLs concurrently and returns only the successful
// documents, in completion order. Failures are logged and dropped; they never
// appear as placeholders in the corpus.
func (p *FetchPool) FetchAll(ctx context.Context, urls []string) []ScrapedDocument {
	var (
		mu   sync.Mutex
		docs []ScrapedDocument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, u := range urls {
		g.Go(func() error {
			// courtesy pause ahead of every fetch, regardless of outcome
			if p.delay > 0 {
				select {
				case <-time.After(p.delay):
				case <-gctx.Done():
					return nil
				}
			}
			doc, err := p.fetcher.Fetch(gctx, u)
			if err != nil || !doc.Success {
				if err == nil {
					err = fmt.Errorf("fetch %s: no content", u)
				}
				p.logger.Printf("%v", err)
				if p.onFail != nil {
					p.onFail(u, err)
				}
				return nil
			}
			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return docs
}
