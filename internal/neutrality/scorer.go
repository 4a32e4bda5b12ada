// Package neutrality scores articles for political slant and falls back to
// prior analyses when the completion service is unavailable.
package neutrality

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AveryLor/BiasBreaker/internal/completion"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
	"github.com/AveryLor/BiasBreaker/internal/processing"
)

const scorePrompt = `Analyze the political bias of the following article. Provide a score from 0 to 100 based on the political leaning of the content:

0 = Extreme left-wing (very liberal, progressive, or socialist-leaning views)
50 = Neutral or factual (balanced coverage, no clear political leaning)
100 = Extreme right-wing (very conservative, nationalist, or traditionalist views)
Values in between are also encouraged.

Focus on language, framing, and ideological slant to determine the political bias.
Also, make sure to provide a precise, unique score. Avoid using common round numbers.

Title: %s
Content: %s

Reply with ONLY these lines:

%s [number between 0-100]
%s [list of short biased phrases or sentences]`

// AnalysisLog reads prior analysis records, newest first.
type AnalysisLog interface {
	RecentAnalyses(ctx context.Context, module string, limit int) ([]models.AnalysisRecord, error)
}

// AnalysisSink appends analysis records.
type AnalysisSink interface {
	AppendAnalysis(ctx context.Context, rec models.AnalysisRecord) error
}

// Options tunes the fallback path.
type Options struct {
	// Threshold is the similarity a prior title must exceed to be reused.
	Threshold float64
	// HistoryLimit is how many prior records are considered.
	HistoryLimit int
}

// Scorer assigns bias scores.
type Scorer struct {
	client  completion.Client
	history AnalysisLog
	sink    AnalysisSink
	opts    Options
	log     *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates a Scorer.
func New(client completion.Client, history AnalysisLog, sink AnalysisSink, opts Options, log *slog.Logger) *Scorer {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	return &Scorer{
		client:  client,
		history: history,
		sink:    sink,
		opts:    opts,
		log:     logger.OrDiscard(log),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Score rates one article. It never fails: a completion error degrades to a
// reused prior analysis or the neutral default.
func (s *Scorer) Score(ctx context.Context, article models.Article) models.ScoreResult {
	text, err := s.client.Complete(ctx, completion.Request{
		Prompt:      fmt.Sprintf(scorePrompt, article.Title, article.Body, processing.BiasScoreMarker, processing.SegmentsMarker),
		MaxTokens:   100,
		Temperature: 0.7,
	})
	if err != nil {
		s.log.Warn("bias scoring failed, using fallback",
			slog.String("article_id", article.ID),
			slog.Any("err", err),
		)
		return s.fallback(ctx, article)
	}

	parsed := processing.ParseBiasResponse(text)
	if !parsed.ScoreFound {
		s.log.Debug("no bias score in response, defaulting", slog.String("article_id", article.ID))
	}

	payload := models.NeutralityPayload{
		BiasScore:       parsed.Score,
		BiasedSegments:  parsed.Segments,
		Recommendations: []string{},
	}
	s.record(ctx, article.Title, payload)

	return result(article.ID, payload, models.OriginLive, "")
}

func (s *Scorer) record(ctx context.Context, title string, payload models.NeutralityPayload) {
	if s.sink == nil {
		return
	}
	encoded, err := payload.Encode()
	if err != nil {
		s.log.Warn("encode neutrality payload", slog.Any("err", err))
		return
	}
	rec := models.AnalysisRecord{
		ID:        s.newID(),
		Module:    models.ModuleNeutralityCheck,
		Query:     title,
		Result:    encoded,
		CreatedAt: s.now(),
	}
	if err := s.sink.AppendAnalysis(ctx, rec); err != nil {
		s.log.Warn("append neutrality analysis", slog.String("query", title), slog.Any("err", err))
	}
}

func (s *Scorer) fallback(ctx context.Context, article models.Article) models.ScoreResult {
	def := result(article.ID, models.DefaultNeutralityPayload(), models.OriginDefault, "")
	if s.history == nil {
		return def
	}

	records, err := s.history.RecentAnalyses(ctx, models.ModuleNeutralityCheck, s.opts.HistoryLimit)
	if err != nil {
		s.log.Warn("load prior analyses", slog.Any("err", err))
		return def
	}
	rec, ok := Closest(article.Title, records, s.opts.Threshold)
	if !ok {
		return def
	}

	payload, err := models.DecodeNeutralityPayload(rec.Result)
	if err != nil {
		s.log.Warn("decode prior analysis", slog.String("record_id", rec.ID), slog.Any("err", err))
		return def
	}

	s.log.Info("reusing prior analysis",
		slog.String("article_id", article.ID),
		slog.String("reused_from", rec.Query),
	)
	return result(article.ID, payload, models.OriginFallback, rec.Query)
}

// Closest picks the record whose query is most similar to query when that
// similarity exceeds threshold, else the first (most recent) record. It reports
// false only for an empty record list.
func Closest(query string, records []models.AnalysisRecord, threshold float64) (models.AnalysisRecord, bool) {
	if len(records) == 0 {
		return models.AnalysisRecord{}, false
	}

	best, bestRatio := -1, -1.0
	for i, r := range records {
		if ratio := processing.Similarity(query, r.Query); ratio > bestRatio {
			best, bestRatio = i, ratio
		}
	}
	if bestRatio > threshold {
		return records[best], true
	}
	return records[0], true
}

func result(articleID string, p models.NeutralityPayload, origin models.ScoreOrigin, reusedFrom string) models.ScoreResult {
	return models.ScoreResult{
		Assessment: models.BiasAssessment{
			ArticleID:       articleID,
			Score:           models.ClampScore(p.BiasScore),
			FlaggedSegments: p.BiasedSegments,
		},
		Origin:          origin,
		ReusedFrom:      reusedFrom,
		Recommendations: p.Recommendations,
	}
}
