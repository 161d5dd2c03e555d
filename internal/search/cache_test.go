package search

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func TestMemoryCache_TTL(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	want := []Result{{Title: "t", URL: "https://a.com"}}
	c.Set(context.Background(), "q", want)

	got, ok := c.Get(context.Background(), "q")
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	got[0].Title = "mutated"
	again, _ := c.Get(context.Background(), "q")
	if again[0].Title != "t" {
		t.Error("cached entry was mutated through a returned slice")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(context.Background(), "q"); ok {
		t.Error("Get() hit after TTL, want miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry removed", c.Len())
	}
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("AGENTFLOW_TEST_REDIS_URL")
	if url == "" {
		t.Skip("AGENTFLOW_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	c, err := NewRedisCache(ctx, url, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v, want nil", err)
	}
	defer func() { _ = c.Close() }()

	query := "agentflow-test-" + time.Now().Format(time.RFC3339Nano)
	if _, ok := c.Get(ctx, query); ok {
		t.Fatal("Get() hit on a fresh key")
	}
	want := []Result{{Title: "t", URL: "https://a.com", RelevanceScore: 0.5}}
	c.Set(ctx, query, want)
	got, ok := c.Get(ctx, query)
	if !ok {
		t.Fatal("Get() miss after Set")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRedisCache_BadURL(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), "not a url", time.Minute, zap.NewNop()); err == nil {
		t.Error("NewRedisCache() error = nil, want parse error")
	}
}
