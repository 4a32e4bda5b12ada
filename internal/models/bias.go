package models

import "encoding/json"

const (
	MinBiasScore     = 0
	MaxBiasScore     = 100
	NeutralBiasScore = 50
)

// Analysis log module names.
const (
	ModuleNeutralityCheck = "neutrality_check"
	ModuleNLU             = "natural_language_understanding"
)

// BiasAssessment is the per-article bias score.
type BiasAssessment struct {
	ArticleID       string   `json:"article_id"`
	Score           int      `json:"bias_score"`
	FlaggedSegments []string `json:"biased_segments"`
}

// ScoreOrigin tells a genuine score apart from degraded ones.
type ScoreOrigin int

const (
	OriginLive ScoreOrigin = iota
	OriginFallback
	OriginDefault
)

func (o ScoreOrigin) String() string {
	switch o {
	case OriginLive:
		return "live"
	case OriginFallback:
		return "fallback"
	default:
		return "default"
	}
}

// MarshalText encodes the origin by name.
func (o ScoreOrigin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ScoreResult is the outcome of scoring one article.
// ReusedFrom holds the query of the analysis record a fallback score was copied from.
// Recommendations are carried over from the stored payload.
type ScoreResult struct {
	Assessment      BiasAssessment
	Origin          ScoreOrigin
	ReusedFrom      string
	Recommendations []string
}

// NeutralityPayload is the JSON payload persisted for neutrality_check records.
type NeutralityPayload struct {
	BiasScore       int      `json:"bias_score"`
	BiasedSegments  []string `json:"biased_segments"`
	Recommendations []string `json:"recommendations"`
}

// DefaultNeutralityPayload is the neutral result used when nothing better is known.
func DefaultNeutralityPayload() NeutralityPayload {
	return NeutralityPayload{
		BiasScore:       NeutralBiasScore,
		BiasedSegments:  []string{},
		Recommendations: []string{},
	}
}

// Encode serializes the payload for the analysis log.
func (p NeutralityPayload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeNeutralityPayload parses a stored payload and clamps its score.
func DecodeNeutralityPayload(raw string) (NeutralityPayload, error) {
	var p NeutralityPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return NeutralityPayload{}, err
	}
	p.BiasScore = ClampScore(p.BiasScore)
	if p.BiasedSegments == nil {
		p.BiasedSegments = []string{}
	}
	if p.Recommendations == nil {
		p.Recommendations = []string{}
	}
	return p, nil
}

// ClampScore forces a score into [0,100].
func ClampScore(score int) int {
	if score < MinBiasScore {
		return MinBiasScore
	}
	if score > MaxBiasScore {
		return MaxBiasScore
	}
	return score
}

// ScoredArticle is a retrieved article with its score.
type ScoredArticle struct {
	RetrievedArticle
	Result ScoreResult
}

// Score is shorthand for the assessed bias score.
func (s ScoredArticle) Score() int {
	return s.Result.Assessment.Score
}
