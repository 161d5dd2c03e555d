package comments

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/net/html"
)

// MaxPostLinks is how many posts a run visits by default.
const MaxPostLinks = 8

// NearDuplicateDistance is the largest edit distance at which two comments
// on one post count as the same comment.
const NearDuplicateDistance = 2

// junk is page chrome that shows up in span[dir=auto].
var junk = []string{
	"Reply", "Like", "Log in to like or comment.", "See more posts", "Meta",
	"About", "Blog", "Jobs", "Help", "API", "Privacy", "Terms", "Locations",
	"Instagram Lite", "Threads", "Contact uploading and non-users", "Meta Verified",
	"English (UK)", "© 2025 Instagram from Meta",
	"By continuing, you agree to Instagram's Terms of Use and Privacy Policy.",
	"See more from", "See photos, videos and more from",
}

var (
	timeAgoRe  = regexp.MustCompile(`^\d+\s?[wdhmy]$`)
	likesRe    = regexp.MustCompile(`^[\d,]+\s+likes?$`)
	dateRe     = regexp.MustCompile(`^\d{1,2}\s+[\p{L}\p{N}_]+\s+\d{4}$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9._]{3,30}$`)
)

// PostLinks returns up to limit unique post URLs ("/p/" links) found in
// page, resolved against base.
func PostLinks(page, base string, limit int) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	links := []string{}
	seen := make(map[string]bool)
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); strings.Contains(href, "/p/") {
				if ref, err := url.Parse(href); err == nil {
					abs := baseURL.ResolveReference(ref).String()
					if !seen[abs] {
						seen[abs] = true
						links = append(links, abs)
						if len(links) >= limit {
							return false
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)
	return links, nil
}

// ExtractComments returns the comment texts of a post page: the text of
// every span[dir=auto] that is not page chrome, a timestamp, a like count,
// a date, a bare username or shorter than three characters.
func ExtractComments(page string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	out := []string{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "span" && attr(n, "dir") == "auto" {
			if txt := strings.TrimSpace(text(n)); IsComment(txt) {
				out = append(out, txt)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

// IsComment reports whether a trimmed span text looks like a comment.
func IsComment(txt string) bool {
	if txt == "" || utf8.RuneCountInString(txt) < 3 {
		return false
	}
	for _, j := range junk {
		if strings.Contains(txt, j) {
			return false
		}
	}
	lower := strings.ToLower(txt)
	switch {
	case timeAgoRe.MatchString(lower),
		likesRe.MatchString(lower),
		dateRe.MatchString(txt),
		usernameRe.MatchString(txt):
		return false
	}
	return true
}

// Dedupe drops comments within NearDuplicateDistance edits of an earlier
// one, keeping first occurrences in order.
func Dedupe(comments []string) []string {
	out := make([]string, 0, len(comments))
	for _, c := range comments {
		dup := false
		for _, kept := range out {
			if levenshtein.ComputeDistance(c, kept) <= NearDuplicateDistance {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
