// Package synthesis writes a neutral composite article from a selection of
// scored sources and summarizes each source in three bullets.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AveryLor/BiasBreaker/internal/completion"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
	"github.com/AveryLor/BiasBreaker/internal/processing"
)

// ErrNoSources is returned when there is nothing to synthesize from.
var ErrNoSources = errors.New("synthesis: no sources")

// Fixed texts used when generation output is missing or fails.
const (
	PlaceholderTitle   = "Generated Neutral Article"
	PlaceholderContent = "Content generation failed."
	ErrorTitle         = "Generation Error"
	ErrorContent       = "Failed to generate a neutral article."
)

const (
	summaryBullets     = 3
	summaryBodyLimit   = 2000
	sourceBodyLimit    = 1000
	sourceBodyHead     = 600
	sourceBodyTail     = 400
	defaultConcurrency = 4
)

// Engine generates neutral articles and source summaries.
type Engine struct {
	client      completion.Client
	concurrency int
	log         *slog.Logger
}

// New creates an Engine that runs at most concurrency summaries at once.
func New(client completion.Client, concurrency int, log *slog.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Engine{client: client, concurrency: concurrency, log: logger.OrDiscard(log)}
}

// Synthesize builds the neutral article for sources. One source takes the
// single-source rewrite path; two or more take the multi-source path. A failed
// generation yields the fixed error texts with ModeError, not an error.
func (e *Engine) Synthesize(ctx context.Context, sources []models.ScoredArticle) (models.SynthesizedArticle, error) {
	if len(sources) == 0 {
		return models.SynthesizedArticle{}, ErrNoSources
	}

	summaries := e.summarizeAll(ctx, sources)

	out := models.SynthesizedArticle{
		SourceArticles: summaries,
		BiasRange:      Range(sources),
		Mode:           models.ModeMultiSource,
	}
	prompt := multiSourcePrompt(sources)
	if len(sources) == 1 {
		out.Mode = models.ModeSingleSource
		prompt = singleSourcePrompt(sources[0])
	}

	text, err := e.client.Complete(ctx, completion.Request{
		Prompt:      prompt,
		MaxTokens:   1000,
		Temperature: 0.7,
	})
	if err != nil {
		e.log.Warn("neutral article generation failed",
			slog.Int("sources", len(sources)),
			slog.Any("err", err),
		)
		out.Title, out.Content, out.Mode = ErrorTitle, ErrorContent, models.ModeError
		return out, nil
	}

	out.Title, out.Content = processing.ParseHeading(text, PlaceholderTitle, PlaceholderContent)
	e.log.Info("neutral article generated",
		slog.String("title", out.Title),
		slog.String("mode", string(out.Mode)),
		slog.String("bias_range", out.BiasRange.String()),
	)
	return out, nil
}

// Range is the min and max source score.
func Range(sources []models.ScoredArticle) models.BiasRange {
	if len(sources) == 0 {
		return models.BiasRange{}
	}
	r := models.BiasRange{Min: sources[0].Score(), Max: sources[0].Score()}
	for _, s := range sources[1:] {
		r.Min = min(r.Min, s.Score())
		r.Max = max(r.Max, s.Score())
	}
	return r
}

func (e *Engine) summarizeAll(ctx context.Context, sources []models.ScoredArticle) []models.SourceSummary {
	out := make([]models.SourceSummary, len(sources))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			out[i] = models.SourceSummary{
				ID:         src.ID,
				Title:      src.Title,
				Score:      src.Score(),
				SourceLink: src.SourceLink,
				Summary:    e.Summarize(ctx, src.Article),
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Summarize returns exactly three bullet lines for article.
func (e *Engine) Summarize(ctx context.Context, article models.Article) []string {
	text, err := e.client.Complete(ctx, completion.Request{
		Prompt:        summaryPrompt(article),
		MaxTokens:     150,
		Temperature:   0.4,
		StopSequences: []string{"\n\n"},
	})
	if err != nil {
		e.log.Warn("summary generation failed", slog.String("article_id", article.ID), slog.Any("err", err))
		return []string{
			fmt.Sprintf("%s Summary of article: %s...", processing.BulletMarker, processing.TruncateRunes(article.Title, 30)),
			processing.BulletMarker + " Could not generate complete summary",
			processing.BulletMarker + " See full article for details",
		}
	}

	bullets := processing.ParseBullets(text)
	if len(bullets) > summaryBullets {
		bullets = bullets[:summaryBullets]
	}
	for len(bullets) < summaryBullets {
		bullets = append(bullets, fmt.Sprintf("%s Additional information about %s",
			processing.BulletMarker, processing.FirstWords(article.Title, 3)))
	}
	return bullets
}

func summaryPrompt(a models.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following article in exactly %d bullet points (using %s as the bullet symbol).\n", summaryBullets, processing.BulletMarker)
	b.WriteString("Each bullet point should be concise (max 15 words) and highlight a key fact or point from the article.\n\n")
	fmt.Fprintf(&b, "Title: %s\n\n", a.Title)
	fmt.Fprintf(&b, "Content: %s\n\n", processing.TruncateRunes(a.Body, summaryBodyLimit))
	fmt.Fprintf(&b, "Format your response as ONLY %d bullet points, one per line, no introduction or conclusion:\n", summaryBullets)
	for _, ordinal := range []string{"First", "Second", "Third"} {
		fmt.Fprintf(&b, "%s %s key point\n", processing.BulletMarker, ordinal)
	}
	return b.String()
}

func singleSourcePrompt(src models.ScoredArticle) string {
	var b strings.Builder
	b.WriteString("Rewrite the following news article in a neutral and objective tone. ")
	b.WriteString("Preserve all factual content, remove loaded or partisan language, and present multiple perspectives if applicable. ")
	fmt.Fprintf(&b, "Include a title starting with '%s ' on the first line.\n\n", processing.HeadingMarker)
	fmt.Fprintf(&b, "SOURCE (Bias Score: %d):\n", src.Score())
	fmt.Fprintf(&b, "Title: %s\n", src.Title)
	fmt.Fprintf(&b, "Content: %s\n\n", sourceBody(src.Body))
	fmt.Fprintf(&b, "Format the output with a title starting with '%s ' followed by the article content.", processing.HeadingMarker)
	return b.String()
}

func multiSourcePrompt(sources []models.ScoredArticle) string {
	var b strings.Builder
	b.WriteString("Generate a neutral and objective news article based on the following sources. ")
	b.WriteString("The article must be factual, unbiased, and present multiple perspectives if applicable. ")
	fmt.Fprintf(&b, "Include a title starting with '%s ' on the first line.\n\n", processing.HeadingMarker)
	b.WriteString("SOURCES:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "SOURCE %d (Bias Score: %d):\n", i+1, src.Score())
		fmt.Fprintf(&b, "Title: %s\n", src.Title)
		fmt.Fprintf(&b, "Content: %s\n\n", sourceBody(src.Body))
	}
	b.WriteString("\nBased on the sources above, write a comprehensive, neutral article that accurately ")
	b.WriteString("synthesizes the factual information while avoiding bias. ")
	b.WriteString("The article should be well-structured and present a balanced view of the topic. ")
	fmt.Fprintf(&b, "Format the output with a title starting with '%s ' followed by the article content.", processing.HeadingMarker)
	return b.String()
}

func sourceBody(body string) string {
	if strings.TrimSpace(body) == "" {
		return "No content available"
	}
	return processing.TruncateMiddle(body, sourceBodyLimit, sourceBodyHead, sourceBodyTail)
}
