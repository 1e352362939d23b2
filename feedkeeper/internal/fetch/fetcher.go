// CLAUDE:SUMMARY HTTP fetcher with conditional GET (ETag / If-Modified-Since), SSRF checks and bounded bodies.
// Package fetch performs the outbound HTTP calls of the pipeline and holds
// the per-source conditional fetch gate.
package fetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/feedkeeper/horosafe"
)

// Request describes one GET. ETag and LastModified turn it into a
// conditional request.
type Request struct {
	URL          string
	ETag         string
	LastModified string
	Accept       string
	Header       http.Header
}

// Conditional reports whether the request carries cache validators.
func (r Request) Conditional() bool {
	return r.ETag != "" || r.LastModified != ""
}

// Result is a completed response (2xx/3xx, or 304).
type Result struct {
	Body         []byte
	StatusCode   int
	Hash         string // sha256 of body
	ETag         string
	LastModified string
	ContentType  string
	FinalURL     string
	NotModified  bool
}

// HTTPError is returned for responses outside [200,400).
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d", e.StatusCode)
}

// StatusCode returns the HTTP status carried by err, 0 if none.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration // Default: 30s.
	MaxBytes  int64         // Default: 10MB.
	UserAgent string
	// URLValidator runs before every request and redirect hop.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "feedkeeper/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

// Fetcher performs HTTP GETs.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher whose redirects are re-validated.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout:       cfg.Timeout,
			CheckRedirect: horosafe.RedirectPolicy(cfg.URLValidator),
		},
		config: cfg,
	}
}

// Fetch performs req. A 304 returns NotModified=true with no body.
// Statuses outside [200,400) return the partial Result and an *HTTPError.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := f.config.URLValidator(req.URL); err != nil {
		return nil, fmt.Errorf("URL blocked: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("User-Agent", f.config.UserAgent)
	if req.Accept != "" {
		hreq.Header.Set("Accept", req.Accept)
	}
	if req.ETag != "" {
		hreq.Header.Set("If-None-Match", req.ETag)
	}
	if req.LastModified != "" {
		hreq.Header.Set("If-Modified-Since", req.LastModified)
	}

	resp, err := f.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	res := &Result{
		StatusCode:   resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ContentType:  resp.Header.Get("Content-Type"),
		FinalURL:     resp.Request.URL.String(),
	}

	if resp.StatusCode == http.StatusNotModified {
		res.NotModified = true
		return res, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return res, &HTTPError{StatusCode: resp.StatusCode, URL: req.URL}
	}

	body, err := horosafe.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	res.Body = body
	res.Hash = fmt.Sprintf("%x", sha256.Sum256(body))
	return res, nil
}
