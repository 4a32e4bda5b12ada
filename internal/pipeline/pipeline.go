// Package pipeline runs a query through keyword expansion, retrieval, bias
// scoring, diverse selection and synthesis.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AveryLor/BiasBreaker/internal/compose"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
	"github.com/AveryLor/BiasBreaker/internal/selection"
)

// KeywordExpander turns a query into keyword entries.
type KeywordExpander interface {
	Expand(ctx context.Context, query string) []models.KeywordEntry
}

// Collector retrieves articles for keywords.
type Collector interface {
	Collect(ctx context.Context, keywords []models.KeywordEntry) []models.RetrievedArticle
}

// ArticleScorer rates one article.
type ArticleScorer interface {
	Score(ctx context.Context, article models.Article) models.ScoreResult
}

// Synthesizer writes the neutral article from a selection set.
type Synthesizer interface {
	Synthesize(ctx context.Context, sources []models.ScoredArticle) (models.SynthesizedArticle, error)
}

// Pipeline wires the stages together.
type Pipeline struct {
	analyzer         KeywordExpander
	retriever        Collector
	scorer           ArticleScorer
	synthesizer      Synthesizer
	anchors          []int
	scoreConcurrency int
	log              *slog.Logger
}

// Options configures New.
type Options struct {
	Anchors          []int
	ScoreConcurrency int
}

// New creates a Pipeline.
func New(a KeywordExpander, r Collector, s ArticleScorer, syn Synthesizer, opts Options, log *slog.Logger) *Pipeline {
	if len(opts.Anchors) == 0 {
		opts.Anchors = selection.DefaultAnchors
	}
	if opts.ScoreConcurrency <= 0 {
		opts.ScoreConcurrency = 4
	}
	return &Pipeline{
		analyzer:         a,
		retriever:        r,
		scorer:           s,
		synthesizer:      syn,
		anchors:          opts.Anchors,
		scoreConcurrency: opts.ScoreConcurrency,
		log:              logger.OrDiscard(log),
	}
}

// Run answers a query. Anticipated failures degrade inside the stages; an
// error is returned only when the request context ends or synthesis breaks.
func (p *Pipeline) Run(ctx context.Context, query string) (compose.Response, error) {
	start := time.Now()

	keywords := p.analyzer.Expand(ctx, query)
	retrieved := p.retriever.Collect(ctx, keywords)
	scored := p.ScoreAll(ctx, retrieved)
	if err := ctx.Err(); err != nil {
		return compose.Response{}, err
	}

	selected := p.Select(scored)

	var synthesized *models.SynthesizedArticle
	if len(selected) > 0 {
		article, err := p.synthesizer.Synthesize(ctx, selected)
		if err != nil {
			return compose.Response{}, fmt.Errorf("synthesize: %w", err)
		}
		synthesized = &article
	}

	resp := compose.Compose(query, keywords, scored, synthesized)
	p.log.Info("query processed",
		slog.String("query", query),
		slog.Int("keywords", len(keywords)),
		slog.Int("articles", len(scored)),
		slog.Int("selected", len(selected)),
		slog.Duration("took", time.Since(start)),
	)
	return resp, nil
}

// ScoreAll scores articles concurrently; the output keeps the input order.
func (p *Pipeline) ScoreAll(ctx context.Context, articles []models.RetrievedArticle) []models.ScoredArticle {
	out := make([]models.ScoredArticle, len(articles))

	var g errgroup.Group
	g.SetLimit(p.scoreConcurrency)
	for i, a := range articles {
		g.Go(func() error {
			out[i] = models.ScoredArticle{RetrievedArticle: a, Result: p.scorer.Score(ctx, a.Article)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Select picks the anchor-nearest articles from scored.
func (p *Pipeline) Select(scored []models.ScoredArticle) []models.ScoredArticle {
	candidates := make([]selection.Candidate, 0, len(scored))
	byID := make(map[string]models.ScoredArticle, len(scored))
	for _, s := range scored {
		candidates = append(candidates, selection.Candidate{ID: s.ID, Score: s.Score()})
		if _, ok := byID[s.ID]; !ok {
			byID[s.ID] = s
		}
	}

	picked := selection.Select(candidates, p.anchors)
	out := make([]models.ScoredArticle, 0, len(picked))
	for _, c := range picked {
		out = append(out, byID[c.ID])
	}
	return out
}
