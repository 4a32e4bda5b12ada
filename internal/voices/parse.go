package voices

import (
	"encoding/json"
	"strings"

	"github.com/AveryLor/BiasBreaker/internal/models"
)

const (
	segmentsKey        = "segments"
	demographicsKey    = "demographics"
	recommendationsKey = "recommendations"
)

// Parse reads a completion reply into an analysis. The reply is expected to be
// a JSON object, possibly wrapped in a code fence or prose; when it is not, the
// quoted lines under each key are collected instead. Parse never fails.
func Parse(text string) models.VoicesAnalysis {
	if v, ok := decodeObject(text); ok {
		return v
	}

	out := models.VoicesAnalysis{}
	if _, rest, ok := strings.Cut(text, segmentsKey); ok {
		section, _, _ := strings.Cut(rest, demographicsKey)
		out.Underrepresented.Segments = quotedLines(section)
	}
	if _, rest, ok := strings.Cut(text, demographicsKey); ok {
		section, _, _ := strings.Cut(rest, recommendationsKey)
		out.Underrepresented.Demographics = quotedLines(section)
	}
	if _, rest, ok := strings.Cut(text, recommendationsKey); ok {
		out.Recommendations = quotedLines(rest)
	}
	return out.Normalize()
}

func decodeObject(text string) (models.VoicesAnalysis, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.VoicesAnalysis{}, false
	}

	var v models.VoicesAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return models.VoicesAnalysis{}, false
	}
	return v.Normalize(), true
}

func quotedLines(section string) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		if !strings.Contains(line, `"`) {
			continue
		}
		if item := strings.Trim(line, ":\"[], \t\r"); item != "" {
			out = append(out, item)
		}
	}
	return out
}
