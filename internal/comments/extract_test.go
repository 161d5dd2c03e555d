package comments

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsComment(t *testing.T) {
	tests := []struct {
		txt  string
		want bool
	}{
		{"노래 너무 좋아요!", true},
		{"this is the best cover", true},
		{"좋아", false},
		{"Reply", false},
		{"See more posts from needze", false},
		{"3w", false},
		{"12 h", false},
		{"1,204 likes", false},
		{"1 like", false},
		{"12 March 2025", false},
		{"3 3월 2025", false},
		{"needze.official", false},
		{"ab", false},
		{"needze official", true},
	}
	for _, tt := range tests {
		if got := IsComment(tt.txt); got != tt.want {
			t.Errorf("IsComment(%q) = %v, want %v", tt.txt, got, tt.want)
		}
	}
}

const postPage = `<html><body>
<span dir="auto">needze.official</span>
<span dir="auto">노래 너무 좋아요!</span>
<span dir="auto">  노래 너무 좋아요!!  </span>
<span dir="auto">Reply</span>
<span dir="auto"><b>목소리</b> 최고에요</span>
<span dir="auto">2d</span>
<span>not a comment span at all</span>
<span dir="ltr">wrong direction text</span>
</body></html>`

func TestExtractComments(t *testing.T) {
	got, err := ExtractComments(postPage)
	if err != nil {
		t.Fatalf("ExtractComments() error = %v, want nil", err)
	}
	want := []string{"노래 너무 좋아요!", "노래 너무 좋아요!!", "목소리 최고에요"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractComments() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"노래 너무 좋아요!", "목소리 최고에요"}, Dedupe(got)); diff != "" {
		t.Errorf("Dedupe() mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"distinct", []string{"first comment", "second one"}, []string{"first comment", "second one"}},
		{"distance two", []string{"great song", "great song!!"}, []string{"great song"}},
		{"distance three", []string{"great song", "great song!!!"}, []string{"great song", "great song!!!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Dedupe(tt.in)); diff != "" {
				t.Errorf("Dedupe() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPostLinks(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><a href="/needze/">profile</a><a href="/p/A1/">a</a><a href="/p/A1/">again</a>`)
	b.WriteString(`<a href="https://www.instagram.com/p/B2/">abs</a><a href="/reel/C3/">reel</a>`)
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, `<a href="/p/X%d/">x</a>`, i)
	}
	b.WriteString(`</body></html>`)

	got, err := PostLinks(b.String(), "https://www.instagram.com/needze/", MaxPostLinks)
	if err != nil {
		t.Fatalf("PostLinks() error = %v, want nil", err)
	}
	want := []string{
		"https://www.instagram.com/p/A1/",
		"https://www.instagram.com/p/B2/",
		"https://www.instagram.com/p/X0/",
		"https://www.instagram.com/p/X1/",
		"https://www.instagram.com/p/X2/",
		"https://www.instagram.com/p/X3/",
		"https://www.instagram.com/p/X4/",
		"https://www.instagram.com/p/X5/",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PostLinks() mismatch (-want +got):\n%s", diff)
	}
}
