// Package retrieval looks up articles per keyword with dedupe and a strict
// collection cap.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
)

// DefaultCollectionCap bounds the collected articles when no cap is configured.
const DefaultCollectionCap = 16

// Searcher finds articles whose title contains a keyword.
type Searcher interface {
	SearchTitles(ctx context.Context, keyword string, limit int) ([]models.Article, error)
}

// Engine collects articles for a keyword list.
type Engine struct {
	store         Searcher
	cap           int
	lookupTimeout time.Duration
	log           *slog.Logger
}

// New creates an Engine. lookupTimeout bounds each store lookup; zero disables it.
func New(store Searcher, collectionCap int, lookupTimeout time.Duration, log *slog.Logger) *Engine {
	if collectionCap <= 0 {
		collectionCap = DefaultCollectionCap
	}
	return &Engine{
		store:         store,
		cap:           collectionCap,
		lookupTimeout: lookupTimeout,
		log:           logger.OrDiscard(log),
	}
}

// Collect walks query-derived keywords before generated ones and stops as soon
// as the cap is reached. Failed lookups count as no results.
func (e *Engine) Collect(ctx context.Context, keywords []models.KeywordEntry) []models.RetrievedArticle {
	ordered := make([]models.KeywordEntry, 0, len(keywords))
	for _, k := range keywords {
		if k.FromOriginalQuery {
			ordered = append(ordered, k)
		}
	}
	for _, k := range keywords {
		if !k.FromOriginalQuery {
			ordered = append(ordered, k)
		}
	}

	out := make([]models.RetrievedArticle, 0, e.cap)
	seen := make(map[string]struct{}, e.cap)

	for _, kw := range ordered {
		if len(out) >= e.cap {
			break
		}

		articles, err := e.lookup(ctx, kw.Text, e.cap+len(out))
		if err != nil {
			e.log.Warn("article lookup failed",
				slog.String("keyword", kw.Text),
				slog.Any("err", err),
			)
			continue
		}

		for _, a := range articles {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, models.RetrievedArticle{
				Article:        a,
				MatchedKeyword: kw.Text,
				KeywordSource:  kw.Source(),
			})
			if len(out) >= e.cap {
				break
			}
		}
	}

	e.log.Debug("articles collected", slog.Int("count", len(out)), slog.Int("cap", e.cap))
	return out
}

func (e *Engine) lookup(ctx context.Context, keyword string, limit int) ([]models.Article, error) {
	if e.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lookupTimeout)
		defer cancel()
	}
	return e.store.SearchTitles(ctx, keyword, limit)
}
