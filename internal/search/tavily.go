package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/needze/agentflow/internal/textutil"
)

// DefaultURL is the Tavily search endpoint.
const DefaultURL = "https://api.tavily.com/search"

const (
	contentLimit = 500
	snippetLimit = 100
)

// Searcher is what the workflows need from a search backend.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Options configures a Client.
type Options struct {
	APIKey     string
	URL        string
	MaxResults int
	HTTPClient *http.Client
	Cache      Cache
	Logger     *zap.Logger

	// Now stamps published dates. Defaults to time.Now.
	Now func() time.Time
}

// Client calls Tavily.
type Client struct {
	opts Options
}

// NewClient returns a Tavily client.
func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{opts: opts}
}

type tavilyRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeImages     bool   `json:"include_images"`
	SearchDepth       string `json:"search_depth"`
}

type tavilyResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	RawContent *string `json:"raw_content"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// Search runs query, serving from the cache when possible. Results that
// fail validation are dropped.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if c.opts.Cache != nil {
		if cached, ok := c.opts.Cache.Get(ctx, query); ok {
			c.opts.Logger.Debug("search cache hit", zap.String("query", query), zap.Int("results", len(cached)))
			return cached, nil
		}
	}

	raw, err := c.post(ctx, query)
	if err != nil {
		return nil, &Error{Query: query, Err: err}
	}

	now := c.opts.Now()
	results := make([]Result, 0, len(raw))
	for i, r := range raw {
		res := convert(r, now)
		if err := res.Validate(); err != nil {
			c.opts.Logger.Debug("dropping invalid result", zap.Int("index", i), zap.String("url", r.URL), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	c.opts.Logger.Info("search done",
		zap.String("query", query),
		zap.Int("raw", len(raw)),
		zap.Int("valid", len(results)))

	if c.opts.Cache != nil {
		c.opts.Cache.Set(ctx, query, results)
	}
	return results, nil
}

func (c *Client) post(ctx context.Context, query string) ([]tavilyResult, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:             query,
		MaxResults:        c.opts.MaxResults,
		IncludeRawContent: true,
		SearchDepth:       "basic",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}
	return out.Results, nil
}

func convert(r tavilyResult, now time.Time) Result {
	res := Result{
		Title:          titleFromURL(r.URL),
		Content:        textutil.Truncate(r.Content, contentLimit),
		URL:            r.URL,
		PublishedDate:  now.UTC().Format("2006-01-02T15:04:05.000000") + "Z",
		Source:         sourceFromURL(r.URL),
		RelevanceScore: r.Score,
		Snippet:        textutil.Truncate(r.Content, snippetLimit),
	}
	if r.RawContent != nil {
		res.RawContent = *r.RawContent
	}
	return res
}

func titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "제목 없음"
	}
	segments := strings.Split(u.Path, "/")
	title := strings.NewReplacer("-", " ", "_", " ").Replace(segments[len(segments)-1])
	if title == "" {
		return "제목 없음"
	}
	return title
}

func sourceFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "알 수 없음"
	}
	host := strings.TrimPrefix(u.Host, "www.")
	return strings.Split(host, ".")[0]
}

// InitialSearch runs the broad issue search for an influencer.
func InitialSearch(ctx context.Context, s Searcher, query string) ([]Result, error) {
	return s.Search(ctx, query+" 최신 이슈 논란 뉴스")
}

// DetailedSearch searches one keyword and tags each result's content with
// it.
func DetailedSearch(ctx context.Context, s Searcher, keyword, base string) ([]Result, error) {
	results, err := s.Search(ctx, base+" "+keyword+" 상세정보 분석")
	if err != nil {
		return nil, err
	}
	tagged := make([]Result, len(results))
	for i, r := range results {
		r.Content = "[키워드: " + keyword + "] " + r.Content
		tagged[i] = r
	}
	return tagged, nil
}

// SafeSearch is fn with errors logged and replaced by an empty result.
func SafeSearch(logger *zap.Logger, fn func() ([]Result, error)) []Result {
	results, err := fn()
	if err != nil {
		logger.Warn("search failed", zap.Error(err))
		return []Result{}
	}
	return results
}
