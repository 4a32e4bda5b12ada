package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AveryLor/BiasBreaker/internal/elasticsearch"
	"github.com/AveryLor/BiasBreaker/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type fakeES struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(r *http.Request) (int, string)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
	f.mu.Unlock()

	status, payload := f.respond(r)
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func (f *fakeES) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newClient(t *testing.T, respond func(r *http.Request) (int, string)) (*elasticsearch.Client, *fakeES) {
	t.Helper()
	fake := &fakeES{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := elasticsearch.New(srv.URL, "news", "analysis_results", nil)
	require.NoError(t, err)
	return c, fake
}

func TestSearchTitlesKeepsSubstringMatches(t *testing.T) {
	c, fake := newClient(t, func(r *http.Request) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[
			{"_source":{"id":"1","title":"Polar Bears starve","body":"b1"}},
			{"_source":{"id":"2","title":"Polar-bears return","body":"b2"}},
			{"_source":{"id":"3","title":"Saving POLAR BEARS","body":"b3","source_link":"https://x"}}
		]}}`
	})

	got, err := c.SearchTitles(context.Background(), "polar bears", 6)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "1", got[0].ID)
	require.Equal(t, "3", got[1].ID)
	require.Equal(t, "https://x", got[1].SourceLink)

	req := fake.last()
	require.Equal(t, "/news/_search", req.Path)
	require.EqualValues(t, 6, req.Body["size"])
	query, _ := json.Marshal(req.Body["query"])
	require.Contains(t, string(query), `"value":"*polar bears*"`)
	require.Contains(t, string(query), `"case_insensitive":true`)
	require.Equal(t, []any{"_doc"}, req.Body["sort"])
}

func TestSearchTitlesEscapesWildcards(t *testing.T) {
	c, fake := newClient(t, func(r *http.Request) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[]}}`
	})

	_, err := c.SearchTitles(context.Background(), "a*b?", 5)
	require.NoError(t, err)
	query, _ := json.Marshal(fake.last().Body["query"])
	require.Contains(t, string(query), `a\\*b\\?`)
}

func TestSearchTitlesEmptyKeywordSkipsRequest(t *testing.T) {
	c, fake := newClient(t, func(r *http.Request) (int, string) {
		return http.StatusOK, `{}`
	})

	got, err := c.SearchTitles(context.Background(), "   ", 5)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, fake.requests)
}

func TestSearchTitlesError(t *testing.T) {
	c, _ := newClient(t, func(r *http.Request) (int, string) {
		return http.StatusInternalServerError, `{"error":"boom"}`
	})

	_, err := c.SearchTitles(context.Background(), "climate", 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "search failed")
}

func TestAppendAnalysisWaitsForRefresh(t *testing.T) {
	c, fake := newClient(t, func(r *http.Request) (int, string) {
		return http.StatusCreated, `{"result":"created"}`
	})

	rec := models.AnalysisRecord{
		ID:        "rec-1",
		Module:    models.ModuleNeutralityCheck,
		Query:     "Some title",
		Result:    `{"bias_score":40}`,
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.AppendAnalysis(context.Background(), rec))

	req := fake.last()
	require.Equal(t, http.MethodPut, req.Method)
	require.Equal(t, "/analysis_results/_doc/rec-1", req.Path)
	require.Contains(t, req.Query, "refresh=wait_for")
	require.Equal(t, "neutrality_check", req.Body["module"])
	require.Equal(t, "Some title", req.Body["query"])

	require.Error(t, c.AppendAnalysis(context.Background(), models.AnalysisRecord{}))
}

func TestRecentAnalysesFiltersModule(t *testing.T) {
	c, fake := newClient(t, func(r *http.Request) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[
			{"_source":{"id":"a","module":"neutrality_check","query":"t1","result":"{}","created_at":"2024-05-02T00:00:00Z"}},
			{"_source":{"id":"b","module":"neutrality_check_v2","query":"t2","result":"{}","created_at":"2024-05-01T00:00:00Z"}}
		]}}`
	})

	got, err := c.RecentAnalyses(context.Background(), models.ModuleNeutralityCheck, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, 2024, got[0].CreatedAt.Year())

	req := fake.last()
	require.Equal(t, "/analysis_results/_search", req.Path)
	sort, _ := json.Marshal(req.Body["sort"])
	require.Contains(t, string(sort), `"order":"desc"`)
}

func TestCheckIndices(t *testing.T) {
	c, _ := newClient(t, func(r *http.Request) (int, string) {
		if strings.HasPrefix(r.URL.Path, "/analysis_results") {
			return http.StatusNotFound, ``
		}
		return http.StatusOK, ``
	})

	err := c.CheckIndices(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "analysis_results does not exist")
}

func TestWaitReadyHonorsContext(t *testing.T) {
	c, _ := newClient(t, func(r *http.Request) (int, string) {
		return http.StatusServiceUnavailable, ``
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.WaitReady(ctx, 10, time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPruneAnalysesLoopsWhileBatchesAreFull(t *testing.T) {
	var calls int
	c, fake := newClient(t, func(r *http.Request) (int, string) {
		calls++
		if calls == 1 {
			return http.StatusOK, `{"deleted":2}`
		}
		return http.StatusOK, `{"deleted":1}`
	})

	cutoff := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	total, err := c.PruneAnalyses(context.Background(), cutoff, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, fake.requests, 2)

	req := fake.last()
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/analysis_results/_delete_by_query", req.Path)
	require.Contains(t, req.Query, "max_docs=2")
	require.Contains(t, req.Query, "conflicts=proceed")
	query, _ := json.Marshal(req.Body["query"])
	require.Contains(t, string(query), `"lt":"2024-04-01T00:00:00Z"`)
}

func TestPruneAnalysesError(t *testing.T) {
	c, _ := newClient(t, func(r *http.Request) (int, string) {
		return http.StatusBadRequest, `{"error":"bad"}`
	})

	_, err := c.PruneAnalyses(context.Background(), time.Now(), 10)
	require.ErrorContains(t, err, "delete by query failed")
}

func TestArticleByID(t *testing.T) {
	c, fake := newClient(t, func(r *http.Request) (int, string) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			return http.StatusNotFound, `{"found":false}`
		}
		return http.StatusOK, `{"found":true,"_source":{"title":"Rural clinics close","body":"text"}}`
	})

	got, err := c.Article(context.Background(), "a-7")
	require.NoError(t, err)
	require.Equal(t, "a-7", got.ID)
	require.Equal(t, "Rural clinics close", got.Title)
	require.Equal(t, "/news/_doc/a-7", fake.last().Path)

	_, err = c.Article(context.Background(), "missing")
	require.ErrorIs(t, err, elasticsearch.ErrNotFound)
}
