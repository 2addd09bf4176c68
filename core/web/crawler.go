package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
)

// ExtractError reports a website that yielded no readable text.
type ExtractError struct {
	URL string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("could not extract content from %s: %v", e.URL, e.Err)
}

func (e *ExtractError) Unwrap() []error {
	return []error{helper.ErrExtract, e.Err}
}

// Crawler fetches single pages or bounded same origin page sets.
type Crawler struct {
	fetcher *Fetcher
	log     *slog.Logger
}

// NewCrawler creates a crawler. A nil fetcher uses the default configuration.
func NewCrawler(fetcher *Fetcher, logger *slog.Logger) *Crawler {
	if fetcher == nil {
		fetcher = NewFetcher(DefaultFetcherConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{fetcher: fetcher, log: logger}
}

// FetchSingle returns the readable text of one page, empty on any failure.
func (c *Crawler) FetchSingle(ctx context.Context, rawURL string) string {
	body, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		c.log.Error("Failed to download page", slog.String("url", rawURL), slog.String("error", err.Error()))
		return ""
	}

	text, err := Extract(body)
	if err != nil {
		c.log.Error("Failed to extract page", slog.String("url", rawURL), slog.String("error", err.Error()))
		return ""
	}
	if strings.TrimSpace(text) == "" {
		c.log.Warn("No text content extracted", slog.String("url", rawURL))
		return ""
	}

	return text
}

type crawlItem struct {
	url   string
	depth int
}

// Crawl performs a breadth first traversal from baseURL. Every url is fetched
// at most once, links are followed only from pages below maxDepth and only
// within the origin of baseURL. Failed pages are skipped. The crawl stops after
// maxPages pages with text or when the frontier is empty.
func (c *Crawler) Crawl(ctx context.Context, baseURL string, maxPages int, maxDepth int) []model.Page {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		c.log.Error("Invalid crawl url", slog.String("url", baseURL))
		return []model.Page{}
	}

	visited := make(map[string]bool)
	queue := []crawlItem{{url: baseURL, depth: 0}}
	results := []model.Page{}

	c.log.Info("Starting website crawl", slog.String("url", baseURL), slog.Int("max_pages", maxPages), slog.Int("max_depth", maxDepth))

	for len(queue) > 0 && len(results) < maxPages {
		if ctx.Err() != nil {
			break
		}

		current := queue[0]
		queue = queue[1:]

		if visited[current.url] || current.depth > maxDepth {
			continue
		}
		visited[current.url] = true

		body, page, err := c.fetcher.FetchPage(ctx, current.url)
		if err != nil {
			c.log.Warn("Could not download page", slog.String("url", current.url), slog.String("error", err.Error()))
			continue
		}
		visited[page.String()] = true

		text, err := Extract(body)
		if err != nil {
			c.log.Warn("Could not extract page", slog.String("url", current.url), slog.String("error", err.Error()))
		} else if strings.TrimSpace(text) != "" {
			results = append(results, model.Page{URL: current.url, Text: text, Depth: current.depth})
		}

		// Stop if we've reached max depth
		if current.depth >= maxDepth {
			continue
		}

		// Relative links resolve against the page after redirects
		for _, link := range Links(body, page, base) {
			if !visited[link] {
				queue = append(queue, crawlItem{url: link, depth: current.depth + 1})
			}
		}
	}

	c.log.Info("Crawl completed", slog.Int("pages", len(results)), slog.Int("visited", len(visited)))

	return results
}

// WebsiteToDocuments turns a website into units with source = page url and type = "website".
// With maxPages == 1 or maxDepth == 0 only rawURL itself is fetched.
func (c *Crawler) WebsiteToDocuments(ctx context.Context, rawURL string, maxPages int, maxDepth int) ([]model.Document, error) {
	if maxPages == 1 || maxDepth == 0 {
		text := c.FetchSingle(ctx, rawURL)
		if text == "" {
			return nil, &ExtractError{URL: rawURL, Err: fmt.Errorf("no content extracted")}
		}
		return []model.Document{websiteDocument(rawURL, text)}, nil
	}

	pages := c.Crawl(ctx, rawURL, maxPages, maxDepth)
	if len(pages) == 0 {
		return nil, &ExtractError{URL: rawURL, Err: fmt.Errorf("no content extracted from crawl")}
	}

	docs := make([]model.Document, 0, len(pages))
	for _, p := range pages {
		docs = append(docs, websiteDocument(p.URL, p.Text))
	}

	c.log.Info("Created documents from website", slog.String("url", rawURL), slog.Int("documents", len(docs)))

	return docs, nil
}

func websiteDocument(pageURL string, text string) model.Document {
	doc := model.NewDocument(text, pageURL)
	doc.Metadata[model.MetadataType] = model.TypeWebsite
	return doc
}
