package processing

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// MinTokenLength is the rune count a query token must exceed to count as salient.
const MinTokenLength = 3

// TruncationMarker joins the head and tail of a shortened body.
const TruncationMarker = "...[content truncated]..."

var whitespace = regexp.MustCompile(`\s+`)

const tokenPunctuation = ".,?!:;()[]{}\"'“”‘’"

// QueryTokens splits a query on whitespace, trims surrounding punctuation and
// keeps tokens longer than MinTokenLength runes, in order and with original case.
func QueryTokens(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		token := strings.Trim(f, tokenPunctuation)
		if utf8.RuneCountInString(token) > MinTokenLength {
			out = append(out, token)
		}
	}
	return out
}

// Overlaps reports whether term and any token contain one another, ignoring case.
func Overlaps(term string, tokens []string) bool {
	t := strings.ToLower(strings.TrimSpace(term))
	if t == "" {
		return false
	}
	for _, token := range tokens {
		tok := strings.ToLower(token)
		if tok == "" {
			continue
		}
		if strings.Contains(t, tok) || strings.Contains(tok, t) {
			return true
		}
	}
	return false
}

// CollapseWhitespace squeezes runs of whitespace into single spaces.
func CollapseWhitespace(input string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
}

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// TruncateMiddle keeps the first head and last tail runes of s when s is longer
// than limit runes, joined with TruncationMarker.
func TruncateMiddle(s string, limit, head, tail int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if head+tail >= len(r) {
		return s
	}
	return string(r[:head]) + TruncationMarker + string(r[len(r)-tail:])
}

// FirstWords returns the first n whitespace-separated words of s.
func FirstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// Similarity is the normalized edit similarity of a and b in [0,1], ignoring case.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
