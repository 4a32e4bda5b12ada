// Package compose assembles the pipeline response payload. It performs no I/O.
package compose

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/AveryLor/BiasBreaker/internal/models"
	"github.com/AveryLor/BiasBreaker/internal/processing"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NeutralArticleID marks the synthesized article in responses.
const NeutralArticleID = "neutral-generated"

// Response is the payload returned for a query.
type Response struct {
	Status             string                `json:"status"`
	Query              string                `json:"query"`
	Keywords           []string              `json:"keywords"`
	KeywordsWithSource []models.KeywordEntry `json:"keywords_with_source"`
	KeywordAnalysis    *KeywordAnalysis      `json:"keyword_analysis,omitempty"`
	Results            []Result              `json:"results"`
	NeutralArticle     *NeutralArticle       `json:"neutral_article"`
	Sources            *Sources              `json:"sources,omitempty"`
	Message            string                `json:"message"`
}

// KeywordAnalysis reports how many keywords came from the query itself.
type KeywordAnalysis struct {
	QueryMainWords   []string `json:"query_main_words"`
	MatchingKeywords []string `json:"matching_keywords"`
	MatchPercentage  float64  `json:"match_percentage"`
}

// Result is one retrieved article with its bias assessment.
type Result struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Content         string               `json:"content"`
	SourceLink      string               `json:"source_link,omitempty"`
	BiasScore       int                  `json:"bias_score"`
	BiasedSegments  []string             `json:"biased_segments"`
	MatchedKeyword  string               `json:"matched_keyword"`
	KeywordSource   models.KeywordSource `json:"keyword_source"`
	ScoreOrigin     models.ScoreOrigin   `json:"score_origin"`
	ReusedFrom      string               `json:"reused_from,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
}

// NeutralArticle is the synthesized article as presented to clients.
type NeutralArticle struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"title"`
	Content         string                 `json:"content"`
	BiasScore       int                    `json:"bias_score"`
	Mode            models.SynthesisMode   `json:"mode"`
	SourceCount     int                    `json:"source_count"`
	SourceBiasRange string                 `json:"source_bias_range"`
	BiasRange       models.BiasRange       `json:"bias_range"`
	SourceArticles  []models.SourceSummary `json:"source_articles"`
}

// Sources summarizes the articles the neutral article was built from.
type Sources struct {
	Count     int                    `json:"count"`
	BiasRange string                 `json:"bias_range"`
	Articles  []models.SourceSummary `json:"articles"`
}

// Compose builds the success response. synthesized may be nil.
func Compose(query string, keywords []models.KeywordEntry, scored []models.ScoredArticle, synthesized *models.SynthesizedArticle) Response {
	resp := Response{
		Status:             StatusSuccess,
		Query:              query,
		Keywords:           make([]string, 0, len(keywords)),
		KeywordsWithSource: make([]models.KeywordEntry, 0, len(keywords)),
		KeywordAnalysis:    Analyze(query, keywords),
		Results:            results(scored),
	}
	for _, k := range keywords {
		resp.Keywords = append(resp.Keywords, k.Text)
		resp.KeywordsWithSource = append(resp.KeywordsWithSource, k)
	}

	if synthesized != nil {
		sources := synthesized.SourceArticles
		if sources == nil {
			sources = []models.SourceSummary{}
		}
		resp.NeutralArticle = &NeutralArticle{
			ID:              NeutralArticleID,
			Title:           synthesized.Title,
			Content:         synthesized.Content,
			BiasScore:       models.NeutralBiasScore,
			Mode:            synthesized.Mode,
			SourceCount:     len(sources),
			SourceBiasRange: synthesized.BiasRange.String(),
			BiasRange:       synthesized.BiasRange,
			SourceArticles:  sources,
		}
		resp.Sources = &Sources{
			Count:     len(sources),
			BiasRange: synthesized.BiasRange.String(),
			Articles:  sources,
		}
	}

	switch {
	case len(resp.Results) == 0 && resp.NeutralArticle == nil:
		resp.Message = "No articles found"
	case resp.NeutralArticle != nil:
		resp.Message = fmt.Sprintf("Found %d articles and generated a neutral article", len(resp.Results))
	default:
		resp.Message = fmt.Sprintf("Found %d articles", len(resp.Results))
	}
	return resp
}

// Error is the envelope returned when a request fails unexpectedly.
func Error(query string) Response {
	return Response{
		Status:             StatusError,
		Query:              query,
		Keywords:           []string{},
		KeywordsWithSource: []models.KeywordEntry{},
		Results:            []Result{},
		Message:            "An error occurred",
	}
}

// Analyze computes the share of keywords overlapping the query's own tokens,
// as a percentage rounded to one decimal.
func Analyze(query string, keywords []models.KeywordEntry) *KeywordAnalysis {
	tokens := processing.QueryTokens(query)

	words := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		lower := strings.ToLower(t)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		words = append(words, lower)
	}

	matching := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if processing.Overlaps(k.Text, words) {
			matching = append(matching, k.Text)
		}
	}

	pct := 0.0
	if len(keywords) > 0 {
		pct = math.Round(float64(len(matching))/float64(len(keywords))*1000) / 10
	}
	return &KeywordAnalysis{QueryMainWords: words, MatchingKeywords: matching, MatchPercentage: pct}
}

func results(scored []models.ScoredArticle) []Result {
	out := make([]Result, 0, len(scored))
	for _, s := range scored {
		segments := s.Result.Assessment.FlaggedSegments
		if segments == nil {
			segments = []string{}
		}
		out = append(out, Result{
			ID:              s.ID,
			Title:           s.Title,
			Content:         s.Body,
			SourceLink:      s.SourceLink,
			BiasScore:       s.Score(),
			BiasedSegments:  segments,
			MatchedKeyword:  s.MatchedKeyword,
			KeywordSource:   s.KeywordSource,
			ScoreOrigin:     s.Result.Origin,
			ReusedFrom:      s.Result.ReusedFrom,
			Recommendations: s.Result.Recommendations,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].KeywordSource == models.SourceOriginal && out[j].KeywordSource != models.SourceOriginal
	})
	return out
}
