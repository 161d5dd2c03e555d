// Package news searches recent articles through NewsAPI.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/tool"
)

// DefaultURL is NewsAPI's everything endpoint.
const DefaultURL = "https://newsapi.org/v2/everything"

const (
	lookback = 7 * 24 * time.Hour
	topN     = 5
)

// ErrNoKey is returned when the client has no API key.
var ErrNoKey = errors.New("news: NEWS_API_KEY is not set")

// Article is one NewsAPI article.
type Article struct {
	Source      Source `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// Source names the publisher of an article.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type response struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []Article `json:"articles"`
}

// Options configures a Client.
type Options struct {
	APIKey     string
	URL        string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
}

// Client calls NewsAPI.
type Client struct {
	opts Options
}

// NewClient returns a NewsAPI client.
func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
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

// Search returns the five most popular articles of the last seven days
// matching keywords.
func (c *Client) Search(ctx context.Context, keywords string) ([]Article, error) {
	if c.opts.APIKey == "" {
		return nil, ErrNoKey
	}
	if strings.TrimSpace(keywords) == "" {
		return nil, errors.New("news: keywords are required")
	}

	q := url.Values{}
	q.Set("q", keywords)
	q.Set("from", c.opts.Now().Add(-lookback).Format(time.DateOnly))
	q.Set("sortBy", "popularity")
	q.Set("apiKey", c.opts.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read news response: %w", err)
	}
	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("news status %d: decode: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Status == "error" {
		return nil, fmt.Errorf("news status %d: %s: %s", resp.StatusCode, out.Code, out.Message)
	}

	articles := out.Articles
	if len(articles) > topN {
		articles = articles[:topN]
	}
	c.opts.Logger.Info("news search done",
		zap.String("keywords", keywords),
		zap.Int("total", len(out.Articles)),
		zap.Int("returned", len(articles)))
	return articles, nil
}

// Tool exposes Search as the "search_news" tool. Input: keywords (string).
func (c *Client) Tool() tool.Tool {
	return &tool.Func{
		ToolName:    "search_news",
		Description: "최근 7일간 인기 뉴스 기사 상위 5개를 검색합니다.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"keywords": map[string]interface{}{"type": "string"},
			},
			"required": []string{"keywords"},
		},
		Fn: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			keywords, ok := tool.StringArg(input, "keywords")
			if !ok {
				return nil, errors.New("keywords parameter required (string)")
			}
			articles, err := c.Search(ctx, keywords)
			if err != nil {
				return nil, err
			}
			items := make([]interface{}, len(articles))
			for i, a := range articles {
				items[i] = map[string]interface{}{
					"title":        a.Title,
					"description":  a.Description,
					"url":          a.URL,
					"source":       a.Source.Name,
					"published_at": a.PublishedAt,
				}
			}
			return map[string]interface{}{"articles": items}, nil
		},
	}
}
