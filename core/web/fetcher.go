package web

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// FetcherConfig configures page downloads.
type FetcherConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes"`
}

// DefaultFetcherConfig returns conservative crawler defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:           15 * time.Second,
		UserAgent:         "ragbot/1.0 (+https://github.com/siherrmann/ragbot)",
		RequestsPerSecond: 2,
		Burst:             4,
		MaxBodyBytes:      5 << 20,
	}
}

// Fetcher downloads html pages through a shared rate limiter.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     FetcherConfig
}

// NewFetcher creates a fetcher, zero values of cfg fall back to the defaults.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	defaults := DefaultFetcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Fetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cfg:     cfg,
	}
}

// Fetch downloads rawURL and returns its body. Non 2xx responses and
// content types other than html or plain text are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := f.FetchPage(ctx, rawURL)
	return body, err
}

// FetchPage is Fetch that also returns the url the body was served from
// after following redirects.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid content type %q: %w", ct, err)
		}
		if !isTextMedia(mediaType) {
			return nil, nil, fmt.Errorf("unsupported content type %s", mediaType)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, nil, err
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}

	return body, final, nil
}

func isTextMedia(mediaType string) bool {
	return mediaType == "application/xhtml+xml" || strings.HasPrefix(mediaType, "text/html") || mediaType == "text/plain"
}
