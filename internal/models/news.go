package models

import "time"

// Article is the canonical article record stored in the article index.
type Article struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	SourceLink string `json:"source_link,omitempty"`
}

// KeywordSource records where a keyword came from.
type KeywordSource string

const (
	SourceOriginal  KeywordSource = "original"
	SourceGenerated KeywordSource = "generated"
)

// KeywordEntry is a single search term produced by the query analyzer.
type KeywordEntry struct {
	Text              string `json:"keyword"`
	FromOriginalQuery bool   `json:"from_original"`
}

// Source maps the provenance flag onto a KeywordSource.
func (k KeywordEntry) Source() KeywordSource {
	if k.FromOriginalQuery {
		return SourceOriginal
	}
	return SourceGenerated
}

// RetrievedArticle is an article together with the keyword that found it.
type RetrievedArticle struct {
	Article
	MatchedKeyword string        `json:"matched_keyword"`
	KeywordSource  KeywordSource `json:"keyword_source"`
}

// AnalysisRecord is one append-only entry of the analysis log.
type AnalysisRecord struct {
	ID        string    `json:"id"`
	Module    string    `json:"module"`
	Query     string    `json:"query"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}
