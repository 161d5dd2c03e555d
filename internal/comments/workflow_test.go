package comments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/store"
)

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error

	mu      sync.Mutex
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return "", err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no page %s", url)
	}
	return page, nil
}

const profile = "https://www.instagram.com/needze/"

func post(comments ...string) string {
	page := "<html><body>"
	for _, c := range comments {
		page += `<span dir="auto">` + c + `</span>`
	}
	return page + "</body></html>"
}

func TestWorkflow_Run(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			profile:                              `<a href="/p/one/">1</a><a href="/p/two/">2</a><a href="/p/three/">3</a>`,
			"https://www.instagram.com/p/one/":   post("첫 번째 댓글", "첫 번째 댓글!", "Reply"),
			"https://www.instagram.com/p/three/": post(),
		},
		errs: map[string]error{"https://www.instagram.com/p/two/": errors.New("status 429")},
	}
	st := store.NewMemStore[State]()
	em := emit.NewBufferedEmitter()
	w, err := New(Options{Fetcher: f, Store: st, Emitter: em, NewRunID: func() string { return "run-1" }})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	got, err := w.Run(context.Background(), profile)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	want := map[string][]string{
		"https://www.instagram.com/p/one/":   {"첫 번째 댓글"},
		"https://www.instagram.com/p/three/": {},
	}
	if diff := cmp.Diff(want, got.Comments); diff != "" {
		t.Errorf("Comments mismatch (-want +got):\n%s", diff)
	}
	if len(got.Errors) != 1 || got.Total() != 1 || len(got.PostLinks) != 0 {
		t.Errorf("Errors = %v, Total() = %d, PostLinks = %v", got.Errors, got.Total(), got.PostLinks)
	}

	wantFetched := []string{
		profile,
		"https://www.instagram.com/p/one/",
		"https://www.instagram.com/p/two/",
		"https://www.instagram.com/p/three/",
	}
	if diff := cmp.Diff(wantFetched, f.fetched); diff != "" {
		t.Errorf("fetch order mismatch (-want +got):\n%s", diff)
	}

	saved, _, err := st.LoadLatest(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("LoadLatest() error = %v, want nil", err)
	}
	if saved.Total() != 1 {
		t.Errorf("stored Total() = %d, want 1", saved.Total())
	}
}

func TestWorkflow_NoPosts(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{profile: "<html></html>"}}
	w, err := New(Options{Fetcher: f})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	got, err := w.Run(context.Background(), profile)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if len(got.Comments) != 0 || len(f.fetched) != 1 {
		t.Errorf("Comments = %v, fetched = %v", got.Comments, f.fetched)
	}
}

func TestWorkflow_ProfileErrors(t *testing.T) {
	w, err := New(Options{Fetcher: &fakeFetcher{errs: map[string]error{profile: errors.New("blocked")}}})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	if _, err := w.Run(context.Background(), profile); err == nil {
		t.Error("Run() error = nil, want profile load error")
	}
	for _, bad := range []string{"", "instagram.com/needze", "ftp://x/y"} {
		if _, err := w.Run(context.Background(), bad); !errors.Is(err, ErrInvalidProfile) {
			t.Errorf("Run(%q) error = %v, want ErrInvalidProfile", bad, err)
		}
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(post("hello there")))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client()}
	page, err := f.Fetch(context.Background(), srv.URL+"/p/x/")
	if err != nil {
		t.Fatalf("Fetch() error = %v, want nil", err)
	}
	if page != post("hello there") {
		t.Errorf("Fetch() = %q", page)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("Fetch() on 404 error = nil, want error")
	}
}
