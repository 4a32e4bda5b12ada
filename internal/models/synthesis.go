package models

import "fmt"

// SynthesisMode records which path produced a synthesized article.
type SynthesisMode string

const (
	ModeSingleSource SynthesisMode = "single_source"
	ModeMultiSource  SynthesisMode = "multi_source"
	ModeError        SynthesisMode = "error"
)

// SourceSummary describes one source used for synthesis.
type SourceSummary struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Score      int      `json:"bias_score"`
	SourceLink string   `json:"source_link,omitempty"`
	Summary    []string `json:"summary"`
}

// BiasRange is the span of source scores.
type BiasRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r BiasRange) String() string {
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// SynthesizedArticle is the neutral composite built from a selection set.
type SynthesizedArticle struct {
	Title          string          `json:"title"`
	Content        string          `json:"content"`
	SourceArticles []SourceSummary `json:"source_articles"`
	BiasRange      BiasRange       `json:"bias_range"`
	Mode           SynthesisMode   `json:"mode"`
}
