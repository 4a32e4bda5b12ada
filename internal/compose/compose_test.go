package compose_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AveryLor/BiasBreaker/internal/compose"
	"github.com/AveryLor/BiasBreaker/internal/models"
)

func scoredArticle(id string, source models.KeywordSource, score int, origin models.ScoreOrigin) models.ScoredArticle {
	return models.ScoredArticle{
		RetrievedArticle: models.RetrievedArticle{
			Article:        models.Article{ID: id, Title: "title " + id, Body: "body " + id},
			MatchedKeyword: "kw-" + id,
			KeywordSource:  source,
		},
		Result: models.ScoreResult{
			Assessment: models.BiasAssessment{ArticleID: id, Score: score},
			Origin:     origin,
		},
	}
}

func TestComposeOrdersOriginalFirst(t *testing.T) {
	scored := []models.ScoredArticle{
		scoredArticle("g1", models.SourceGenerated, 10, models.OriginLive),
		scoredArticle("o1", models.SourceOriginal, 20, models.OriginFallback),
		scoredArticle("g2", models.SourceGenerated, 30, models.OriginLive),
		scoredArticle("o2", models.SourceOriginal, 40, models.OriginDefault),
	}

	resp := compose.Compose("q", nil, scored, nil)

	var order []string
	for _, r := range resp.Results {
		order = append(order, r.ID)
	}
	require.Equal(t, []string{"o1", "o2", "g1", "g2"}, order)
	require.Equal(t, "Found 4 articles", resp.Message)
	require.Nil(t, resp.NeutralArticle)
	require.Nil(t, resp.Sources)
	require.NotNil(t, resp.Results[0].BiasedSegments)
}

func TestComposeNoArticles(t *testing.T) {
	resp := compose.Compose("nothing here", []models.KeywordEntry{{Text: "nothing", FromOriginalQuery: true}}, nil, nil)
	require.Equal(t, compose.StatusSuccess, resp.Status)
	require.Equal(t, "No articles found", resp.Message)
	require.Empty(t, resp.Results)
	require.NotNil(t, resp.Results)
}

func TestAnalyzeMatchPercentage(t *testing.T) {
	keywords := []models.KeywordEntry{
		{Text: "climate change", FromOriginalQuery: true},
		{Text: "Polar", FromOriginalQuery: true},
		{Text: "arctic"},
	}
	got := compose.Analyze("Climate change and polar bears?", keywords)

	require.Equal(t, []string{"climate", "change", "polar", "bears"}, got.QueryMainWords)
	require.Equal(t, []string{"climate change", "Polar"}, got.MatchingKeywords)
	require.Equal(t, 66.7, got.MatchPercentage)

	require.Zero(t, compose.Analyze("anything", nil).MatchPercentage)
}

func TestComposeJSONShape(t *testing.T) {
	keywords := []models.KeywordEntry{{Text: "tariffs", FromOriginalQuery: true}, {Text: "trade war"}}
	scored := []models.ScoredArticle{scoredArticle("1", models.SourceOriginal, 35, models.OriginLive)}
	synth := &models.SynthesizedArticle{
		Title:   "Neutral",
		Content: "Text",
		SourceArticles: []models.SourceSummary{
			{ID: "1", Title: "title 1", Score: 35, Summary: []string{"• a", "• b", "• c"}},
		},
		BiasRange: models.BiasRange{Min: 35, Max: 35},
		Mode:      models.ModeSingleSource,
	}

	data, err := json.Marshal(compose.Compose("tariffs", keywords, scored, synth))
	require.NoError(t, err)

	require.JSONEq(t, `{
		"status": "success",
		"query": "tariffs",
		"keywords": ["tariffs", "trade war"],
		"keywords_with_source": [
			{"keyword": "tariffs", "from_original": true},
			{"keyword": "trade war", "from_original": false}
		],
		"keyword_analysis": {
			"query_main_words": ["tariffs"],
			"matching_keywords": ["tariffs"],
			"match_percentage": 50
		},
		"results": [{
			"id": "1",
			"title": "title 1",
			"content": "body 1",
			"bias_score": 35,
			"biased_segments": [],
			"matched_keyword": "kw-1",
			"keyword_source": "original",
			"score_origin": "live"
		}],
		"neutral_article": {
			"id": "neutral-generated",
			"title": "Neutral",
			"content": "Text",
			"bias_score": 50,
			"mode": "single_source",
			"source_count": 1,
			"source_bias_range": "35-35",
			"bias_range": {"min": 35, "max": 35},
			"source_articles": [{"id": "1", "title": "title 1", "bias_score": 35, "summary": ["• a", "• b", "• c"]}]
		},
		"sources": {
			"count": 1,
			"bias_range": "35-35",
			"articles": [{"id": "1", "title": "title 1", "bias_score": 35, "summary": ["• a", "• b", "• c"]}]
		},
		"message": "Found 1 articles and generated a neutral article"
	}`, string(data))
}

func TestErrorEnvelope(t *testing.T) {
	data, err := json.Marshal(compose.Error("boom"))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"status": "error",
		"query": "boom",
		"keywords": [],
		"keywords_with_source": [],
		"results": [],
		"neutral_article": null,
		"message": "An error occurred"
	}`, string(data))
}

func TestComposeCarriesReusedRecommendations(t *testing.T) {
	reused := scoredArticle("o1", models.SourceOriginal, 31, models.OriginFallback)
	reused.Result.ReusedFrom = "Senate passes climate bill"
	reused.Result.Recommendations = []string{"cite sources"}
	live := scoredArticle("o2", models.SourceOriginal, 60, models.OriginLive)
	live.Result.Recommendations = []string{}

	resp := compose.Compose("q", nil, []models.ScoredArticle{reused, live}, nil)

	data, err := json.Marshal(resp.Results)
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, []any{"cite sources"}, raw[0]["recommendations"])
	require.NotContains(t, raw[1], "recommendations")
}
