package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AveryLor/BiasBreaker/internal/completion"
	"github.com/AveryLor/BiasBreaker/internal/models"
)

type stubExpander struct{}

func (stubExpander) Expand(_ context.Context, query string) []models.KeywordEntry {
	return []models.KeywordEntry{{Text: query, FromOriginalQuery: true}}
}

type stubCollector struct {
	articles []models.RetrievedArticle
}

func (s stubCollector) Collect(context.Context, []models.KeywordEntry) []models.RetrievedArticle {
	return s.articles
}

type stubAnalyses struct {
	records []models.AnalysisRecord
}

func (s stubAnalyses) RecentAnalyses(context.Context, string, int) ([]models.AnalysisRecord, error) {
	return s.records, nil
}

type captureSink struct {
	mu   sync.Mutex
	recs []models.AnalysisRecord
}

func (c *captureSink) AppendAnalysis(_ context.Context, rec models.AnalysisRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

type chatModel struct {
	topic     string
	topicErr  error
	answer    string
	answerErr error
	prompts   []string
}

func (m *chatModel) Complete(_ context.Context, req completion.Request) (string, error) {
	if strings.HasPrefix(req.Prompt, "Analyze this query") {
		return m.topic, m.topicErr
	}
	m.prompts = append(m.prompts, req.Prompt)
	return m.answer, m.answerErr
}

func newTestAssistant(m *chatModel, found []models.RetrievedArticle, analyses AnalysisLog, sink AnalysisSink) *Assistant {
	a := NewAssistant(Deps{
		Client:    m,
		Keywords:  stubExpander{},
		Retriever: stubCollector{articles: found},
		History:   NewMemoryStore(DefaultHistoryCapacity, time.Hour, 10),
		Analyses:  analyses,
		Sink:      sink,
	}, Options{TopicThreshold: 0.6, HistoryLimit: 5}, nil)
	a.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	a.newID = func() string { return "generated-id" }
	return a
}

var solarArticle = models.RetrievedArticle{
	Article:        models.Article{ID: "s1", Title: "Solar output hits record", Body: strings.Repeat("s", 250)},
	MatchedKeyword: "solar",
	KeywordSource:  models.SourceOriginal,
}

func TestConverseAnswersWithHistory(t *testing.T) {
	m := &chatModel{topic: "Renewable Energy", answer: "  Solar output is up.  "}
	sink := &captureSink{}
	a := newTestAssistant(m, []models.RetrievedArticle{solarArticle}, nil, sink)
	ctx := context.Background()

	first := a.Converse(ctx, "sess-1", "solar power")
	require.Equal(t, "sess-1", first.SessionID)
	require.Equal(t, TopicRenewableEnergy, first.Topic)
	require.Equal(t, []string{"solar power"}, first.Keywords)
	require.Equal(t, "Solar output is up.", first.Response)
	require.Len(t, first.Articles, 1)
	require.Equal(t, strings.Repeat("s", 200)+"...", first.Articles[0].Summary)
	require.Equal(t, "Matches keyword: 'solar'", first.Articles[0].Relevance)

	a.Converse(ctx, "sess-1", "and wind?")
	require.Contains(t, m.prompts[1], "Previous conversation:\nUser: solar power\nAssistant: Solar output is up.\n")
	require.NotContains(t, m.prompts[0], "Previous conversation")

	require.Len(t, sink.recs, 2)
	require.Equal(t, models.ModuleNLU, sink.recs[0].Module)
	require.Equal(t, "solar power", sink.recs[0].Query)
	require.JSONEq(t, `{"topic":"renewable energy","keywords":["solar power"]}`, sink.recs[0].Result)
}

func TestConverseNoArticles(t *testing.T) {
	m := &chatModel{topic: "general"}
	a := newTestAssistant(m, nil, nil, nil)

	reply := a.Converse(context.Background(), "", "cricket scores")
	require.Equal(t, "generated-id", reply.SessionID)
	require.Equal(t, NoArticlesReply, reply.Response)
	require.Empty(t, reply.Articles)
	require.Empty(t, m.prompts)

	past, err := a.history.Load(context.Background(), "generated-id")
	require.NoError(t, err)
	require.Equal(t, []Exchange{{Query: "cricket scores", Response: NoArticlesReply}}, past)
}

func TestConverseResponseFailure(t *testing.T) {
	m := &chatModel{topic: "environment", answerErr: errors.New("down")}
	reply := newTestAssistant(m, []models.RetrievedArticle{solarArticle}, nil, nil).Converse(context.Background(), "s", "solar")
	require.Equal(t, TroubleReply, reply.Response)
}

func TestConverseTopicFallback(t *testing.T) {
	analyses := stubAnalyses{records: []models.AnalysisRecord{
		{Module: models.ModuleNLU, Query: "solar panel subsidies", Result: `{"topic":"renewable energy"}`},
	}}

	m := &chatModel{topicErr: errors.New("down"), answer: "ok"}
	a := newTestAssistant(m, []models.RetrievedArticle{solarArticle}, analyses, nil)
	require.Equal(t, TopicRenewableEnergy, a.Converse(context.Background(), "s", "solar panel subsidy").Topic)
	require.Equal(t, TopicGeneral, a.Converse(context.Background(), "s", "central bank rates").Topic)

	noLog := newTestAssistant(&chatModel{topicErr: errors.New("down")}, nil, nil, nil)
	require.Equal(t, TopicGeneral, noLog.Converse(context.Background(), "s", "solar panel subsidy").Topic)
}
