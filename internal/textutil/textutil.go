// Package textutil holds the small text helpers shared by the workflows.
// Lengths are counted in runes.
package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxQueryLen is the longest accepted search query.
const MaxQueryLen = 100

// MaxCleanLen is the default cap applied by CleanText.
const MaxCleanLen = 8000

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// ValidateQuery reports whether q is a usable search query.
func ValidateQuery(q string) bool {
	return strings.TrimSpace(q) != "" && utf8.RuneCountInString(q) <= MaxQueryLen
}

// Truncate shortens s to at most n runes, ending in "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

// Head returns the first n runes of s without a marker.
func Head(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// CleanText strips HTML tags, collapses whitespace and caps the result at
// MaxCleanLen runes.
func CleanText(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(Truncate(s, MaxCleanLen))
}

// CleanKeywords trims keywords, keeps those of 2 to 20 runes and drops
// duplicates, preserving first occurrence order.
func CleanKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		n := utf8.RuneCountInString(kw)
		if n < 2 || n > 20 {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// MergeUnique appends the items of extra missing from base, keeping order.
func MergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
