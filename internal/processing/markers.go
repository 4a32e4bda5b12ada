package processing

import (
	"regexp"
	"strconv"
	"strings"
)

// Markers the completion service is asked to echo.
const (
	BiasScoreMarker = "BIAS_SCORE:"
	SegmentsMarker  = "BIASED_SEGMENTS:"
	HeadingMarker   = "#"
	BulletMarker    = "•"
)

var (
	digits      = regexp.MustCompile(`\d+`)
	quotedItems = regexp.MustCompile(`"([^"]+)"`)
)

var emptySegmentTokens = map[string]struct{}{
	"":     {},
	"[]":   {},
	"none": {},
	"n/a":  {},
}

// BiasResponse is what could be read out of a bias-scoring completion.
type BiasResponse struct {
	Score      int
	ScoreFound bool
	Segments   []string
}

// ParseBiasResponse scans text line by line. The first BIAS_SCORE line gives the
// score (first digit run, clamped to 0..100) and the first BIASED_SEGMENTS line
// gives the segments. Without a score the result is 50.
func ParseBiasResponse(text string) BiasResponse {
	out := BiasResponse{Score: 50, Segments: []string{}}
	scoreSeen, segmentsSeen := false, false

	for _, line := range strings.Split(text, "\n") {
		line = stripDecoration(line)
		switch {
		case !scoreSeen && hasMarker(line, BiasScoreMarker):
			scoreSeen = true
			if n, ok := FirstInt(afterMarker(line, BiasScoreMarker)); ok {
				out.Score = clamp(n, 0, 100)
				out.ScoreFound = true
			}
		case !segmentsSeen && hasMarker(line, SegmentsMarker):
			segmentsSeen = true
			out.Segments = parseSegments(afterMarker(line, SegmentsMarker))
		}
	}
	return out
}

// FirstInt extracts the first run of digits in s.
func FirstInt(s string) (int, bool) {
	m := digits.FindString(s)
	if m == "" {
		return 0, false
	}
	// Long digit runs cannot be real scores; saturate instead of failing.
	if len(m) > 9 {
		return 1_000_000_000, true
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseSegments(payload string) []string {
	payload = strings.TrimSpace(payload)
	if _, empty := emptySegmentTokens[strings.ToLower(payload)]; empty {
		return []string{}
	}

	if strings.HasPrefix(payload, "[") && strings.HasSuffix(payload, "]") {
		inner := strings.TrimSpace(payload[1 : len(payload)-1])
		if inner == "" {
			return []string{}
		}
		if quoted := quotedItems.FindAllStringSubmatch(inner, -1); len(quoted) > 0 {
			out := make([]string, 0, len(quoted))
			for _, q := range quoted {
				if s := strings.TrimSpace(q[1]); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
		return []string{inner}
	}
	return []string{payload}
}

// ParseHeading splits a generated article into title and content. The first
// line is the title when it starts with the heading marker and a space; the
// remaining lines are the content. Placeholders fill whatever is missing.
func ParseHeading(text, placeholderTitle, placeholderContent string) (string, string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	title := placeholderTitle
	first := strings.TrimSpace(lines[0])
	if rest, ok := strings.CutPrefix(first, HeadingMarker+" "); ok {
		if t := strings.TrimSpace(rest); t != "" {
			title = t
		}
	}

	content := ""
	if len(lines) > 1 {
		content = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	if content == "" {
		content = placeholderContent
	}
	return title, content
}

// ParseBullets returns the trimmed lines that start with the bullet marker.
func ParseBullets(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, BulletMarker) {
			out = append(out, line)
		}
	}
	return out
}

// ParseTermList reads a comma-separated list of terms from the first non-empty
// line of text, dropping echoes of prompt scaffolding.
func ParseTermList(text string) []string {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if line == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(line, ",") {
		term := strings.Trim(strings.TrimSpace(part), "\"'`.")
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		lower := strings.ToLower(term)
		if strings.HasPrefix(lower, "example") || strings.HasPrefix(lower, "output") {
			continue
		}
		out = append(out, term)
	}
	return out
}

func hasMarker(line, marker string) bool {
	return len(line) >= len(marker) && strings.EqualFold(line[:len(marker)], marker)
}

func afterMarker(line, marker string) string {
	return strings.TrimSpace(line[len(marker):])
}

// stripDecoration removes markdown emphasis and list dashes models like to add.
func stripDecoration(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "*-_ ")
	return strings.ReplaceAll(line, "**", "")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
