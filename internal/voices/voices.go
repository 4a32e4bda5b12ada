// Package voices points out the perspectives and groups an article leaves
// underrepresented.
package voices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AveryLor/BiasBreaker/internal/completion"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
)

// ErrNoArticle is returned when the input names neither an article id nor a
// title and body.
var ErrNoArticle = errors.New("no article available for analysis")

// DefaultHistoryLimit is how many prior records the fallback reads.
const DefaultHistoryLimit = 3

const analysisPrompt = `Analyze the following news article and identify underrepresented perspectives or voices:

Title: %s

Body:
%s

Please identify:
1. Segments of text that mention underrepresented groups or perspectives
2. Demographics or groups that might be underrepresented in this article
3. Recommendations for including more diverse perspectives

Format as JSON with the following structure:
{
    "underrepresented": {
        "segments": ["segment1", "segment2", ...],
        "demographics": ["demographic1", "demographic2", ...]
    },
    "recommendations": ["recommendation1", "recommendation2", ...]
}`

// ArticleStore looks articles up by id.
type ArticleStore interface {
	Article(ctx context.Context, id string) (models.Article, error)
}

// AnalysisLog reads prior analysis records, newest first.
type AnalysisLog interface {
	RecentAnalyses(ctx context.Context, module string, limit int) ([]models.AnalysisRecord, error)
}

// AnalysisSink appends analysis records.
type AnalysisSink interface {
	AppendAnalysis(ctx context.Context, rec models.AnalysisRecord) error
}

// Input names the article to analyze. A non-empty title and body win over ArticleID.
type Input struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// Result is one analysis with its provenance.
type Result struct {
	ArticleID        string                  `json:"article_id,omitempty"`
	Title            string                  `json:"title"`
	Underrepresented models.Underrepresented `json:"underrepresented"`
	Recommendations  []string                `json:"recommendations"`
	Origin           models.ScoreOrigin      `json:"origin"`
	ReusedFrom       string                  `json:"reused_from,omitempty"`
}

// Deps are the collaborators of an Analyzer. Articles, History and Sink may be nil.
type Deps struct {
	Client   completion.Client
	Articles ArticleStore
	History  AnalysisLog
	Sink     AnalysisSink
}

// Analyzer runs perspective analyses.
type Analyzer struct {
	client       completion.Client
	articles     ArticleStore
	history      AnalysisLog
	sink         AnalysisSink
	historyLimit int
	log          *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates an Analyzer. historyLimit <= 0 selects DefaultHistoryLimit.
func New(d Deps, historyLimit int, log *slog.Logger) *Analyzer {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Analyzer{
		client:       d.Client,
		articles:     d.Articles,
		history:      d.History,
		sink:         d.Sink,
		historyLimit: historyLimit,
		log:          logger.OrDiscard(log),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// Analyze resolves the article and analyzes it. Only article resolution can
// fail; a completion error degrades to the newest prior analysis or the default.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (Result, error) {
	article, err := a.resolve(ctx, in)
	if err != nil {
		return Result{}, err
	}

	text, err := a.client.Complete(ctx, completion.Request{
		Prompt:      fmt.Sprintf(analysisPrompt, article.Title, article.Body),
		MaxTokens:   600,
		Temperature: 0.4,
	})
	if err != nil {
		a.log.Warn("voices analysis failed, using fallback",
			slog.String("title", article.Title),
			slog.Any("err", err),
		)
		return a.fallback(ctx, article), nil
	}

	analysis := Parse(text)
	a.record(ctx, article.Title, analysis)
	return result(article, analysis, models.OriginLive, ""), nil
}

func (a *Analyzer) resolve(ctx context.Context, in Input) (models.Article, error) {
	title, body := strings.TrimSpace(in.Title), strings.TrimSpace(in.Body)
	if title != "" && body != "" {
		return models.Article{ID: strings.TrimSpace(in.ArticleID), Title: title, Body: body}, nil
	}

	id := strings.TrimSpace(in.ArticleID)
	if id == "" || a.articles == nil {
		return models.Article{}, ErrNoArticle
	}
	article, err := a.articles.Article(ctx, id)
	if err != nil {
		return models.Article{}, fmt.Errorf("load article %s: %w", id, err)
	}
	if strings.TrimSpace(article.Title) == "" || strings.TrimSpace(article.Body) == "" {
		return models.Article{}, ErrNoArticle
	}
	return article, nil
}

func (a *Analyzer) fallback(ctx context.Context, article models.Article) Result {
	def := result(article, models.DefaultVoicesAnalysis(), models.OriginDefault, "")
	if a.history == nil {
		return def
	}

	records, err := a.history.RecentAnalyses(ctx, models.ModuleUnderrepresentedVoices, a.historyLimit)
	if err != nil {
		a.log.Warn("load prior voices analyses", slog.Any("err", err))
		return def
	}
	if len(records) == 0 {
		return def
	}

	// Articles are not comparable by title here, so the newest record is reused.
	rec := records[0]
	analysis, err := models.DecodeVoicesAnalysis(rec.Result)
	if err != nil {
		a.log.Warn("decode prior voices analysis", slog.String("record_id", rec.ID), slog.Any("err", err))
		return def
	}
	return result(article, analysis, models.OriginFallback, rec.Query)
}

func (a *Analyzer) record(ctx context.Context, title string, analysis models.VoicesAnalysis) {
	if a.sink == nil {
		return
	}
	encoded, err := analysis.Encode()
	if err != nil {
		a.log.Warn("encode voices analysis", slog.Any("err", err))
		return
	}
	rec := models.AnalysisRecord{
		ID:        a.newID(),
		Module:    models.ModuleUnderrepresentedVoices,
		Query:     title,
		Result:    encoded,
		CreatedAt: a.now(),
	}
	if err := a.sink.AppendAnalysis(ctx, rec); err != nil {
		a.log.Warn("append voices analysis", slog.String("query", title), slog.Any("err", err))
	}
}

func result(article models.Article, v models.VoicesAnalysis, origin models.ScoreOrigin, reusedFrom string) Result {
	v = v.Normalize()
	return Result{
		ArticleID:        article.ID,
		Title:            article.Title,
		Underrepresented: v.Underrepresented,
		Recommendations:  v.Recommendations,
		Origin:           origin,
		ReusedFrom:       reusedFrom,
	}
}
