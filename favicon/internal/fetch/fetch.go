// Package fetch implements the bounded HTTP fetcher behind the favicon
// source chain. Every request carries a hard timeout and a response size
// cap so a single hung or bloated icon source can never stall resolution.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/quai/urlguard"
)

// Result contains the outcome of a fetch.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string // from response header, may be empty
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // per-request bound. Default: 5s.
	MaxBytes int64         // max response body size. Default: 512 KiB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch (SSRF prevention).
	// Default: urlguard.ValidateURL.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 512 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "quai-favicon/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = urlguard.ValidateURL
	}
}

// Fetcher performs bounded HTTP GET requests.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher with SSRF protection on redirects.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked (SSRF): %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves a URL. Non-2xx statuses, transport errors, and bodies
// exceeding MaxBytes all return an error: a source that misbehaves in any
// of these ways is simply the wrong source, and the caller moves on.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	// SSRF: validate URL before request.
	if err := f.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("URL blocked (SSRF): %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "image/*,text/html;q=0.5,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{StatusCode: resp.StatusCode}, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := urlguard.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
