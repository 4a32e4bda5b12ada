// Package analyzer expands a free-text query into a short, prioritized list
// of search keywords.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/AveryLor/BiasBreaker/internal/completion"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
	"github.com/AveryLor/BiasBreaker/internal/processing"
)

// DefaultMaxKeywords bounds the keyword list when no limit is configured.
const DefaultMaxKeywords = 5

const keywordPrompt = `Extract exactly %d key search terms related to this topic: "%s"

IMPORTANT INSTRUCTIONS:
1. ALWAYS include the main important words from the original query (if they are relevant and spelled correctly)
2. If the original query has fewer than %d main words, add related terms to reach %d keywords
3. All keywords must be highly relevant to the query's central topic
4. Output ONLY the words separated by commas, with no additional text or explanation

Example input: "What are the effects of climate change on polar bears?"
Example output: climate change, polar bears, arctic, ice melt, habitat loss`

// Analyzer turns queries into keyword entries.
type Analyzer struct {
	client      completion.Client
	maxKeywords int
	log         *slog.Logger
}

// New creates an Analyzer. A non-positive maxKeywords uses DefaultMaxKeywords.
func New(client completion.Client, maxKeywords int, log *slog.Logger) *Analyzer {
	if maxKeywords <= 0 {
		maxKeywords = DefaultMaxKeywords
	}
	return &Analyzer{client: client, maxKeywords: maxKeywords, log: logger.OrDiscard(log)}
}

// Expand returns between one and maxKeywords entries for a non-empty query,
// query-derived entries first. It never fails; an empty query yields nil.
func (a *Analyzer) Expand(ctx context.Context, query string) []models.KeywordEntry {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	tokens := processing.QueryTokens(query)

	text, err := a.client.Complete(ctx, completion.Request{
		Prompt:        fmt.Sprintf(keywordPrompt, a.maxKeywords, query, a.maxKeywords, a.maxKeywords),
		MaxTokens:     50,
		Temperature:   0.3,
		StopSequences: []string{"\n"},
	})
	if err != nil {
		a.log.Warn("keyword extraction failed, using query tokens", slog.Any("err", err))
		return a.fallback(query, tokens)
	}

	terms := processing.ParseTermList(text)
	if len(terms) == 0 {
		a.log.Warn("keyword extraction returned nothing usable, using query tokens")
		return a.fallback(query, tokens)
	}

	entries := make([]models.KeywordEntry, 0, a.maxKeywords)
	seen := make(map[string]struct{}, len(terms)+len(tokens))
	for _, term := range terms {
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, models.KeywordEntry{
			Text:              term,
			FromOriginalQuery: processing.Overlaps(term, tokens),
		})
	}

	for _, token := range tokens {
		if len(entries) >= a.maxKeywords {
			break
		}
		key := strings.ToLower(token)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, models.KeywordEntry{Text: token, FromOriginalQuery: true})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].FromOriginalQuery && !entries[j].FromOriginalQuery
	})
	if len(entries) > a.maxKeywords {
		entries = entries[:a.maxKeywords]
	}

	a.log.Debug("keywords extracted", slog.String("query", query), slog.Int("count", len(entries)))
	return entries
}

func (a *Analyzer) fallback(query string, tokens []string) []models.KeywordEntry {
	if len(tokens) == 0 {
		return []models.KeywordEntry{{Text: query, FromOriginalQuery: true}}
	}
	if len(tokens) > a.maxKeywords {
		tokens = tokens[:a.maxKeywords]
	}
	out := make([]models.KeywordEntry, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, models.KeywordEntry{Text: t, FromOriginalQuery: true})
	}
	return out
}

// Texts returns the keyword strings in order.
func Texts(entries []models.KeywordEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}
