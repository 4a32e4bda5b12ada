package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/models"
)

const maxSearchSize = 200

// ErrNotFound is returned when a document id is unknown.
var ErrNotFound = errors.New("document not found")

// Client wraps go-elasticsearch with the article and analysis-log operations
// the pipeline needs.
type Client struct {
	es            *elasticsearch.Client
	articleIndex  string
	analysisIndex string
	log           *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr, articleIndex, analysisIndex string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Client{
		es:            es,
		articleIndex:  articleIndex,
		analysisIndex: analysisIndex,
		log:           logger.OrDiscard(log),
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// WaitReady pings until Elasticsearch answers, doubling the delay between
// attempts up to 30s.
func (c *Client) WaitReady(ctx context.Context, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = c.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		c.log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", lastErr),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return fmt.Errorf("elasticsearch not ready after %d attempts: %w", attempts, lastErr)
}

// CheckIndices reports whether the article and analysis indices exist. It is
// the one-time startup probe; provisioning happens elsewhere.
func (c *Client) CheckIndices(ctx context.Context) error {
	for _, index := range []string{c.articleIndex, c.analysisIndex} {
		res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("check index %s: %w", index, err)
		}
		res.Body.Close()

		if res.StatusCode == http.StatusNotFound {
			return fmt.Errorf("index %s does not exist", index)
		}
		if res.IsError() {
			return fmt.Errorf("check index %s failed: %s", index, res.Status())
		}
	}
	return nil
}

// IndexArticle writes an article into the article index.
func (c *Client) IndexArticle(ctx context.Context, article models.Article) error {
	return c.put(ctx, c.articleIndex, article.ID, article, "false")
}

// AppendAnalysis writes one analysis record. The write waits for a refresh so
// the fallback lookups of a following request can see it.
func (c *Client) AppendAnalysis(ctx context.Context, rec models.AnalysisRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("analysis record without id")
	}
	return c.put(ctx, c.analysisIndex, rec.ID, rec, "wait_for")
}

func (c *Client) put(ctx context.Context, index, id string, doc any, refresh string) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    refresh,
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// Article fetches one article by id.
func (c *Client) Article(ctx context.Context, id string) (models.Article, error) {
	if strings.TrimSpace(id) == "" {
		return models.Article{}, ErrNotFound
	}

	res, err := c.es.Get(c.articleIndex, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return models.Article{}, fmt.Errorf("get article: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return models.Article{}, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return models.Article{}, fmt.Errorf("get article failed: %s", strings.TrimSpace(string(data)))
	}

	var doc struct {
		Source models.Article `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return models.Article{}, fmt.Errorf("decode article: %w", err)
	}
	if doc.Source.ID == "" {
		doc.Source.ID = id
	}
	return doc.Source, nil
}

// SearchTitles returns up to limit articles whose title contains keyword,
// ignoring case.
func (c *Client) SearchTitles(ctx context.Context, keyword string, limit int) ([]models.Article, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	if limit <= 0 || limit > maxSearchSize {
		limit = maxSearchSize
	}

	body := map[string]any{
		"size": limit,
		"sort": []any{"_doc"},
		"query": map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{
						"wildcard": map[string]any{
							"title.keyword": map[string]any{
								"value":            "*" + escapeWildcard(keyword) + "*",
								"case_insensitive": true,
							},
						},
					},
					{
						"match_phrase": map[string]any{
							"title": keyword,
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
	}

	hits, err := searchHits[models.Article](ctx, c, c.articleIndex, body)
	if err != nil {
		return nil, err
	}

	// match_phrase is tokenized, so keep only true substring matches.
	needle := strings.ToLower(keyword)
	out := make([]models.Article, 0, len(hits))
	for _, a := range hits {
		if strings.Contains(strings.ToLower(a.Title), needle) {
			out = append(out, a)
		}
	}
	return out, nil
}

// RecentAnalyses returns the newest analysis records of a module, newest first.
func (c *Client) RecentAnalyses(ctx context.Context, module string, limit int) ([]models.AnalysisRecord, error) {
	if limit <= 0 || limit > maxSearchSize {
		limit = maxSearchSize
	}

	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"match": map[string]any{
				"module": map[string]any{
					"query":    module,
					"operator": "and",
				},
			},
		},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc", "unmapped_type": "date"}},
		},
	}

	records, err := searchHits[models.AnalysisRecord](ctx, c, c.analysisIndex, body)
	if err != nil {
		return nil, err
	}

	out := records[:0]
	for _, r := range records {
		if r.Module == module {
			out = append(out, r)
		}
	}
	return out, nil
}

func searchHits[T any](ctx context.Context, c *Client, index string, body map[string]any) ([]T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source T `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]T, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return items, nil
}

// PruneAnalyses deletes analysis records created before cutoff with batched
// delete-by-query, looping until a batch deletes fewer than batchSize.
func (c *Client) PruneAnalyses(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"created_at": map[string]any{
					"lt": cutoff.UTC().Format(time.RFC3339),
				},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	var total int64
	for {
		deleted, err := c.deleteBatch(ctx, payload, batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < int64(batchSize) {
			return total, nil
		}
	}
}

func (c *Client) deleteBatch(ctx context.Context, payload []byte, batchSize int) (int64, error) {
	res, err := c.es.DeleteByQuery(
		[]string{c.analysisIndex},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithMaxDocs(batchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// Health checks the cluster health endpoint.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

func escapeWildcard(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)
	return r.Replace(s)
}
