// Package resources searches and extracts mental-health reading material
// through the Tavily API.
package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	// CuratedQuery backs the curated research list.
	CuratedQuery = "latest academic research books and papers on mental health in India"

	DepthBasic    = "basic"
	DepthAdvanced = "advanced"

	TypeBooks  = "books"
	TypePapers = "papers"

	DefaultBaseURL     = "https://api.tavily.com"
	DefaultCacheTTL    = 5 * time.Minute
	defaultMaxResults  = 10
	curatedMaxResults  = 15
	missingDescription = "No description available"
)

var (
	ErrNotConfigured = errors.New("search api key not configured")
	ErrNoExtraction  = errors.New("no extraction returned")
)

// HTTPError is a non-2xx answer from the search API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("search api returned status %d", e.StatusCode)
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeImages bool   `json:"include_images"`
	MaxResults    int    `json:"max_results"`
}

// Result is one search hit.
type Result struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	URL      string   `json:"url"`
	Score    *float64 `json:"score,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Type     string   `json:"type,omitempty"`
}

// Article is the extracted text of one page.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

type extraction struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Error   *string `json:"error"`
}

type extractResponse struct {
	Extractions []extraction `json:"extractions"`
}

// Options configures a Client.
type Options struct {
	APIKey     string
	BaseURL    string
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// Client talks to the search API. Search responses are cached.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   *cache.Cache
	logger  *zap.Logger
}

// New builds a Client. An empty BaseURL falls back to DefaultBaseURL.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid search base url %q", opts.BaseURL)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: strings.TrimRight(base, "/"),
		http:    httpClient,
		cache:   cache.New(ttl, 2*ttl),
		logger:  logger.Named("resources"),
	}, nil
}

// Search runs req. Empty depth and result count take the API defaults.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, errors.New("search query is required")
	}
	if req.SearchDepth == "" {
		req.SearchDepth = DepthBasic
	}
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}

	key := cacheKey(req)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("search cache hit", zap.String("query", req.Query))
		return cloneResults(cached.([]Result)), nil
	}

	var resp searchResponse
	if err := c.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Results {
		if resp.Results[i].Content == "" {
			resp.Results[i].Content = missingDescription
		}
	}

	c.cache.SetDefault(key, resp.Results)
	c.logger.Debug("search complete", zap.String("query", req.Query), zap.Int("results", len(resp.Results)))
	return cloneResults(resp.Results), nil
}

// Curated returns the preset research query classified into books and
// papers. limit <= 0 uses the default of 15.
func (c *Client) Curated(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = curatedMaxResults
	}
	results, err := c.Search(ctx, SearchRequest{
		Query:       CuratedQuery,
		SearchDepth: DepthAdvanced,
		MaxResults:  limit,
	})
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Type = Classify(results[i])
	}
	return results, nil
}

// Classify labels a result as books unless it looks like a PDF paper.
func Classify(r Result) string {
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), "book") }
	if contains(r.Title) || contains(r.Content) || contains(r.URL) {
		return TypeBooks
	}
	if !strings.Contains(strings.ToLower(r.URL), "pdf") {
		return TypeBooks
	}
	return TypePapers
}

// Extract fetches the readable content of pageURL.
func (c *Client) Extract(ctx context.Context, pageURL string) (Article, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return Article{}, errors.New("url is required")
	}

	var resp extractResponse
	if err := c.post(ctx, "/extract", map[string][]string{"urls": {pageURL}}, &resp); err != nil {
		return Article{}, err
	}
	if len(resp.Extractions) == 0 {
		return Article{}, fmt.Errorf("%w for %s", ErrNoExtraction, pageURL)
	}
	first := resp.Extractions[0]
	if first.Error != nil {
		return Article{}, fmt.Errorf("extraction error: %s", *first.Error)
	}
	return Article{Title: first.Title, Content: first.Content, URL: first.URL}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("search api error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Describe turns an error from this package into a user-facing message.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized:
			return "API key invalid or expired. Please check your Tavily API credentials."
		case httpErr.StatusCode == http.StatusForbidden:
			return "Access forbidden. Your API key may not have permission to access this resource."
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return "Too many requests. API rate limit exceeded."
		case httpErr.StatusCode >= 500:
			return "Tavily server error. Please try again later."
		default:
			return fmt.Sprintf("HTTP error: %d", httpErr.StatusCode)
		}
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return "Network error: Unable to reach Tavily API. Check your internet connection."
	}
	return "Error: " + err.Error()
}

func cacheKey(req SearchRequest) string {
	return fmt.Sprintf("%s|%s|%t|%d", strings.ToLower(req.Query), req.SearchDepth, req.IncludeImages, req.MaxResults)
}

func cloneResults(in []Result) []Result {
	out := make([]Result, len(in))
	copy(out, in)
	return out
}
