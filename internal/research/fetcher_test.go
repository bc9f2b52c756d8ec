package research

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/procurelens/marketintel/config"
)

// stubFetcher succeeds for URLs containing "good" and fails for the rest.
type stubFetcher struct {
	mu      sync.Mutex
	fetched []string
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (ScrapedDocument, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if !strings.Contains(url, "good") {
		return ScrapedDocument{URL: url}, fmt.Errorf("extract %s: unreachable", url)
	}
	return ScrapedDocument{URL: url, Title: "doc " + url, Content: "content of " + url, Success: true}, nil
}

func TestFetchAllKeepsOnlySuccesses(t *testing.T) {
	fetcher := &stubFetcher{}
	var failed []string
	var mu sync.Mutex
	pool := NewFetchPool(fetcher, 3, 0, log.New(log.Writer(), "[FETCH] ", 0), func(url string, err error) {
		mu.Lock()
		failed = append(failed, url)
		mu.Unlock()
	})

	urls := []string{
		"https://good.example.com/1",
		"https://bad.example.com/2",
		"https://good.example.com/3",
		"https://bad.example.com/4",
	}
	docs := pool.FetchAll(context.Background(), urls)

	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, d := range docs {
		if !d.Success {
			t.Fatalf("failed fetch leaked into corpus: %+v", d)
		}
		if !strings.Contains(d.URL, "good") {
			t.Fatalf("unexpected document: %s", d.URL)
		}
	}
	sort.Strings(failed)
	if len(failed) != 2 || failed[0] != "https://bad.example.com/2" || failed[1] != "https://bad.example.com/4" {
		t.Fatalf("unexpected failure callbacks: %v", failed)
	}
	if len(fetcher.fetched) != 4 {
		t.Fatalf("expected every url attempted, got %d", len(fetcher.fetched))
	}
}

func TestFetchAllDelaysBeforeEveryFetch(t *testing.T) {
	const delay = 25 * time.Millisecond
	fetcher := &stubFetcher{}
	pool := NewFetchPool(fetcher, 1, delay, log.New(log.Writer(), "[FETCH] ", 0), nil)

	start := time.Now()
	pool.FetchAll(context.Background(), []string{
		"https://bad.example.com/1",
		"https://bad.example.com/2",
	})
	elapsed := time.Since(start)

	if len(fetcher.fetched) != 2 {
		t.Fatalf("expected both urls attempted, got %d", len(fetcher.fetched))
	}
	// one worker, one pause per url, and the pause applies to failures too
	if elapsed < 2*delay {
		t.Fatalf("elapsed %v, want at least %v", elapsed, 2*delay)
	}
}

func TestFetchAllEmptyInput(t *testing.T) {
	pool := NewFetchPool(&stubFetcher{}, 2, 0, log.New(log.Writer(), "[FETCH] ", 0), nil)
	docs := pool.FetchAll(context.Background(), nil)
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}

func TestNewFetcher(t *testing.T) {
	f, err := NewFetcher(config.FetcherConfig{Type: "readability", MaxChars: 100})
	if err != nil {
		t.Fatalf("readability fetcher: %v", err)
	}
	if _, ok := f.(*ReadabilityFetcher); !ok {
		t.Fatalf("expected ReadabilityFetcher, got %T", f)
	}

	f, err = NewFetcher(config.FetcherConfig{Type: "chromedp"})
	if err != nil {
		t.Fatalf("chromedp fetcher: %v", err)
	}
	if _, ok := f.(*ChromedpFetcher); !ok {
		t.Fatalf("expected ChromedpFetcher, got %T", f)
	}

	if _, err := NewFetcher(config.FetcherConfig{Type: "curl"}); err == nil {
		t.Fatalf("expected error for unsupported fetcher type")
	}
}
