package research

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
)

// ChromedpFetcher renders the page in headless Chrome before extraction.
// Needed for sites that assemble their content client-side.
type ChromedpFetcher struct {
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
}

func (f *ChromedpFetcher) Fetch(ctx context.Context, pageURL string) (ScrapedDocument, error) {
	if strings.TrimSpace(pageURL) == "" {
		return ScrapedDocument{}, fmt.Errorf("invalid url")
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	html, err := f.renderHTML(ctx, pageURL)
	if err != nil {
		return ScrapedDocument{URL: pageURL}, fmt.Errorf("render %s: %w", pageURL, err)
	}
	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(pageURL))
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

func (f *ChromedpFetcher) renderHTML(ctx context.Context, pageURL string) (string, error) {
	ua := f.UserAgent
	if ua == "" {
		ua = "MarketIntelBot/1.0 (+ops@procurelens.io)"
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(ua),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
