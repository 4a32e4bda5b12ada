// Package conversation is the chat-style variant of the pipeline: it
// classifies the query's topic, finds matching articles and answers in
// natural language with a bounded per-session history.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AveryLor/BiasBreaker/internal/completion"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
	"github.com/AveryLor/BiasBreaker/internal/processing"
)

// Fixed replies.
const (
	NoArticlesReply = "I'm sorry, I don't have any information about that in my database. Could you try asking about something else?"
	TroubleReply    = "I found some information about that, but I'm having trouble processing it. Could you try asking in a different way?"
)

const articleSummaryLimit = 200

// KeywordExpander turns a query into keyword entries.
type KeywordExpander interface {
	Expand(ctx context.Context, query string) []models.KeywordEntry
}

// Collector retrieves articles for keywords.
type Collector interface {
	Collect(ctx context.Context, keywords []models.KeywordEntry) []models.RetrievedArticle
}

// AnalysisLog reads prior analysis records, newest first.
type AnalysisLog interface {
	RecentAnalyses(ctx context.Context, module string, limit int) ([]models.AnalysisRecord, error)
}

// AnalysisSink appends analysis records.
type AnalysisSink interface {
	AppendAnalysis(ctx context.Context, rec models.AnalysisRecord) error
}

// Options tunes the topic fallback.
type Options struct {
	TopicThreshold float64
	HistoryLimit   int
}

// ArticleRef is an article as cited in a conversational reply.
type ArticleRef struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Relevance string `json:"relevance"`
}

// Reply is the answer to one conversational query.
type Reply struct {
	SessionID string       `json:"session_id"`
	Topic     string       `json:"topic"`
	Keywords  []string     `json:"keywords"`
	Articles  []ArticleRef `json:"articles"`
	Response  string       `json:"response"`
}

// Assistant answers queries conversationally.
type Assistant struct {
	client    completion.Client
	keywords  KeywordExpander
	retriever Collector
	history   HistoryStore
	analyses  AnalysisLog
	sink      AnalysisSink
	opts      Options
	log       *slog.Logger

	now   func() time.Time
	newID func() string
}

// Deps groups the assistant's collaborators. Analyses and Sink may be nil.
type Deps struct {
	Client    completion.Client
	Keywords  KeywordExpander
	Retriever Collector
	History   HistoryStore
	Analyses  AnalysisLog
	Sink      AnalysisSink
}

// NewAssistant creates an Assistant.
func NewAssistant(d Deps, opts Options, log *slog.Logger) *Assistant {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 5
	}
	if d.History == nil {
		d.History = NewMemoryStore(DefaultHistoryCapacity, 0, 0)
	}
	return &Assistant{
		client:    d.Client,
		keywords:  d.Keywords,
		retriever: d.Retriever,
		history:   d.History,
		analyses:  d.Analyses,
		sink:      d.Sink,
		opts:      opts,
		log:       logger.OrDiscard(log),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Converse answers query within sessionID, creating a session id when empty.
func (a *Assistant) Converse(ctx context.Context, sessionID, query string) Reply {
	if sessionID == "" {
		sessionID = a.newID()
	}
	query = strings.TrimSpace(query)

	topic := a.classify(ctx, query)
	entries := a.keywords.Expand(ctx, query)
	found := a.retriever.Collect(ctx, entries)

	reply := Reply{
		SessionID: sessionID,
		Topic:     topic,
		Keywords:  make([]string, 0, len(entries)),
		Articles:  make([]ArticleRef, 0, len(found)),
	}
	for _, e := range entries {
		reply.Keywords = append(reply.Keywords, e.Text)
	}
	for _, f := range found {
		summary := f.Body
		if len([]rune(summary)) > articleSummaryLimit {
			summary = processing.TruncateRunes(summary, articleSummaryLimit) + "..."
		}
		reply.Articles = append(reply.Articles, ArticleRef{
			ID:        f.ID,
			Title:     f.Title,
			Summary:   summary,
			Relevance: fmt.Sprintf("Matches keyword: '%s'", f.MatchedKeyword),
		})
	}

	past, err := a.history.Load(ctx, sessionID)
	if err != nil {
		a.log.Warn("load conversation history", slog.String("session_id", sessionID), slog.Any("err", err))
	}

	if len(reply.Articles) == 0 {
		reply.Response = NoArticlesReply
	} else {
		reply.Response = a.respond(ctx, query, reply, past)
	}

	if err := a.history.Append(ctx, sessionID, Exchange{Query: query, Response: reply.Response}); err != nil {
		a.log.Warn("append conversation history", slog.String("session_id", sessionID), slog.Any("err", err))
	}
	a.record(ctx, query, Analysis{Topic: topic, Keywords: reply.Keywords})
	return reply
}

func (a *Assistant) classify(ctx context.Context, query string) string {
	answer, err := a.client.Complete(ctx, completion.Request{
		Prompt:      fmt.Sprintf(topicPrompt, strings.Join(topics, "\n- "), query),
		Temperature: 0.3,
	})
	if err == nil {
		return NormalizeTopic(answer)
	}

	a.log.Warn("topic classification failed, checking prior analyses", slog.Any("err", err))
	if a.analyses == nil {
		return TopicGeneral
	}
	records, err := a.analyses.RecentAnalyses(ctx, models.ModuleNLU, a.opts.HistoryLimit)
	if err != nil {
		a.log.Warn("load prior analyses", slog.Any("err", err))
		return TopicGeneral
	}
	if topic, ok := topicFromHistory(query, records, a.opts.TopicThreshold); ok {
		return topic
	}
	return TopicGeneral
}

func (a *Assistant) respond(ctx context.Context, query string, reply Reply, past []Exchange) string {
	var b strings.Builder
	b.WriteString("You are a friendly and helpful news assistant. Your primary purpose is to provide information from news articles in your database. ")
	b.WriteString("Share information ONLY from the articles found and do not make up information.\n\n")

	if len(past) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, e := range past {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", e.Query, e.Response)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User's current query: %s\n\n", query)
	fmt.Fprintf(&b, "Topic of the query: %s\n", reply.Topic)
	fmt.Fprintf(&b, "Keywords searched: %s\n\n", strings.Join(reply.Keywords, ", "))

	b.WriteString("I found these relevant articles that match the user's query:\n")
	for i, art := range reply.Articles {
		fmt.Fprintf(&b, "%d. %s\n   Summary: %s\n   Relevance: %s\n", i+1, art.Title, art.Summary, art.Relevance)
	}
	b.WriteString("\nProvide a helpful response that only discusses information found in these articles. ")
	b.WriteString("Use natural, conversational language and synthesize the information when there are multiple articles.")

	text, err := a.client.Complete(ctx, completion.Request{Prompt: b.String(), Temperature: 0.7})
	if err != nil {
		a.log.Warn("response generation failed", slog.Any("err", err))
		return TroubleReply
	}
	return strings.TrimSpace(text)
}

func (a *Assistant) record(ctx context.Context, query string, analysis Analysis) {
	if a.sink == nil {
		return
	}
	data, err := json.Marshal(analysis)
	if err != nil {
		a.log.Warn("encode analysis", slog.Any("err", err))
		return
	}
	rec := models.AnalysisRecord{
		ID:        a.newID(),
		Module:    models.ModuleNLU,
		Query:     query,
		Result:    string(data),
		CreatedAt: a.now(),
	}
	if err := a.sink.AppendAnalysis(ctx, rec); err != nil {
		a.log.Warn("append analysis", slog.String("module", models.ModuleNLU), slog.Any("err", err))
	}
}
