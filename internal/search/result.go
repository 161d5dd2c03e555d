// Package search queries the Tavily web search API and converts its
// results into validated Results.
package search

import (
	"fmt"
	"strings"
)

// Result is one validated search hit.
type Result struct {
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	URL            string  `json:"url"`
	PublishedDate  string  `json:"published_date"`
	Source         string  `json:"source"`
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet"`
	RawContent     string  `json:"raw_content,omitempty"`
}

// Validate checks the fields every downstream step relies on.
func (r Result) Validate() error {
	switch {
	case r.Title == "":
		return fmt.Errorf("empty title")
	case r.Content == "":
		return fmt.Errorf("empty content")
	case r.PublishedDate == "":
		return fmt.Errorf("empty published date")
	case !strings.HasPrefix(r.URL, "http://") && !strings.HasPrefix(r.URL, "https://"):
		return fmt.Errorf("url %q is not http(s)", r.URL)
	case r.RelevanceScore < 0 || r.RelevanceScore > 1:
		return fmt.Errorf("relevance score %v out of [0,1]", r.RelevanceScore)
	}
	return nil
}

// Error is a failed search.
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("search %q: %v", e.Query, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DedupeByURL keeps the first result for every URL, preserving order.
func DedupeByURL(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}
