package conversation

import (
	"encoding/json"
	"strings"

	"github.com/AveryLor/BiasBreaker/internal/models"
	"github.com/AveryLor/BiasBreaker/internal/processing"
)

// Topics the classifier chooses from.
const (
	TopicRenewableEnergy = "renewable energy"
	TopicBusinessImpact  = "business impact"
	TopicEnvironment     = "environment"
	TopicAI              = "artificial intelligence"
	TopicGeneral         = "general"
)

var topics = []string{TopicRenewableEnergy, TopicBusinessImpact, TopicEnvironment, TopicAI, TopicGeneral}

const topicPrompt = `Analyze this query and determine the main topic. Choose from these options:
- %s

Format your response as just the topic name, nothing else.

Query: %s`

// Analysis is the payload stored for each conversational query.
type Analysis struct {
	Topic    string   `json:"topic"`
	Keywords []string `json:"keywords"`
}

// NormalizeTopic maps a free-form classifier answer onto one of the fixed topics.
func NormalizeTopic(answer string) string {
	line := strings.ToLower(strings.TrimSpace(answer))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	words := strings.FieldsFunc(line, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	hasWord := func(w string) bool {
		for _, x := range words {
			if x == w {
				return true
			}
		}
		return false
	}

	switch {
	case strings.Contains(line, "artificial") || hasWord("ai") || strings.Contains(line, "machine learning"):
		return TopicAI
	case strings.Contains(line, "renewable") || strings.Contains(line, "energy"):
		return TopicRenewableEnergy
	case strings.Contains(line, "business") || strings.Contains(line, "economic"):
		return TopicBusinessImpact
	case strings.Contains(line, "environment") || strings.Contains(line, "climate"):
		return TopicEnvironment
	default:
		return TopicGeneral
	}
}

// topicFromHistory reuses the topic of the most similar prior query when the
// similarity exceeds threshold.
func topicFromHistory(query string, records []models.AnalysisRecord, threshold float64) (string, bool) {
	best, bestRatio := -1, -1.0
	for i, r := range records {
		if ratio := processing.Similarity(query, r.Query); ratio > bestRatio {
			best, bestRatio = i, ratio
		}
	}
	if best < 0 || bestRatio <= threshold {
		return "", false
	}

	var prior Analysis
	if err := json.Unmarshal([]byte(records[best].Result), &prior); err != nil || prior.Topic == "" {
		return "", false
	}
	return prior.Topic, true
}
