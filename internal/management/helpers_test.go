package management

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/model"
	"github.com/needze/agentflow/internal/search"
)

var fixedNow = time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)

// fakeSearcher answers initial and detailed searches separately.
type fakeSearcher struct {
	initial  func(call int) []search.Result
	detailed func(query string) []search.Result
	err      error

	mu           sync.Mutex
	queries      []string
	initialCalls int
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	isInitial := strings.HasSuffix(query, "최신 이슈 논란 뉴스")
	call := f.initialCalls
	if isInitial {
		f.initialCalls++
	}
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if isInitial {
		if f.initial == nil {
			return nil, nil
		}
		return f.initial(call), nil
	}
	if f.detailed == nil {
		return nil, nil
	}
	return f.detailed(query), nil
}

func (f *fakeSearcher) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func results(prefix string, n int) []search.Result {
	out := make([]search.Result, n)
	for i := range out {
		out[i] = search.Result{
			Title:          fmt.Sprintf("%s article %d", prefix, i),
			Content:        "본문 " + prefix,
			URL:            fmt.Sprintf("https://news.example.com/%s/%d", prefix, i),
			PublishedDate:  "2025-01-01T00:00:00.000000Z",
			Source:         "news",
			RelevanceScore: 0.9,
		}
	}
	return out
}

// onePerQuery returns a single result whose URL is derived from the query.
func onePerQuery(query string) []search.Result {
	r := results("d", 1)[0]
	r.URL = "https://news.example.com/q/" + url.PathEscape(query)
	return []search.Result{r}
}

func keywordReplyJSON(keywords ...string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return fmt.Sprintf(`{"keywords":[%s],"reasoning":"test"}`, strings.Join(quoted, ","))
}

func analysisReplyJSON(isIssue bool, severity int, category string) string {
	return fmt.Sprintf(`{"is_issue":%t,"severity_level":%d,"issue_category":%q,"summary":"요약","potential_impact":"영향","confidence_score":0.8,"reasoning":"근거"}`,
		isIssue, severity, category)
}

type fixture struct {
	searcher *fakeSearcher
	keywords *model.MockChatModel
	analysis *model.MockChatModel
	events   *emit.BufferedEmitter
	wf       *Workflow
}

func newFixture(t *testing.T, s *fakeSearcher, keywords, analysis *model.MockChatModel) *fixture {
	t.Helper()
	if keywords == nil {
		keywords = &model.MockChatModel{Err: fmt.Errorf("keyword model unavailable")}
	}
	if analysis == nil {
		analysis = &model.MockChatModel{Err: fmt.Errorf("analysis model unavailable")}
	}
	events := emit.NewBufferedEmitter()
	wf, err := New(Options{
		Searcher:      s,
		Keywords:      &KeywordExtractor{Model: keywords},
		Analyzer:      &IssueAnalyzer{Model: analysis},
		Emitter:       events,
		ParallelLimit: 3,
		Now:           func() time.Time { return fixedNow },
		NewRunID:      func() string { return "run-1" },
	})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	return &fixture{searcher: s, keywords: keywords, analysis: analysis, events: events, wf: wf}
}

// trail lists the executed nodes of run-1 in order.
func (f *fixture) trail() []string {
	var out []string
	for _, ev := range f.events.HistoryWithFilter("run-1", emit.HistoryFilter{Msg: "node_start"}) {
		out = append(out, ev.NodeID)
	}
	return out
}
