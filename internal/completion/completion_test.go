package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AveryLor/BiasBreaker/internal/config"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompleteSendsRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"BIAS_SCORE: 41"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL+"/", "secret", "local-model")
	text, err := c.Complete(context.Background(), Request{
		Prompt:        "score this",
		MaxTokens:     100,
		Temperature:   0.7,
		StopSequences: []string{"\n\n"},
	})
	require.NoError(t, err)
	require.Equal(t, "BIAS_SCORE: 41", text)

	require.Equal(t, "local-model", got.Model)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "user", got.Messages[0].Role)
	require.Equal(t, "score this", got.Messages[0].Content)
	require.Equal(t, 100, got.MaxTokens)
	require.Equal(t, []string{"\n\n"}, got.Stop)
	require.False(t, got.Stream)
}

func TestOpenAICompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		empty  bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `boom`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, empty: true},
		{name: "blank content", status: http.StatusOK, body: `{"choices":[{"message":{"content":"  "}}]}`, empty: true},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenAI(srv.URL, "", "").Complete(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			require.Equal(t, tt.empty, errors.Is(err, ErrEmptyCompletion))
		})
	}
}

func TestWithTimeoutAppliesDeadline(t *testing.T) {
	inner := ClientFunc(func(ctx context.Context, _ Request) (string, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		require.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
		return "ok", nil
	})

	text, err := WithTimeout(inner, time.Second).Complete(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "ok", text)
}

func TestGenerationConfig(t *testing.T) {
	cfg := generationConfig(Request{MaxTokens: 50, Temperature: 0.3, StopSequences: []string{"\n"}})
	require.NotNil(t, cfg.Temperature)
	require.InDelta(t, 0.3, float64(*cfg.Temperature), 1e-6)
	require.EqualValues(t, 50, cfg.MaxOutputTokens)
	require.Equal(t, []string{"\n"}, cfg.StopSequences)

	bare := generationConfig(Request{})
	require.Zero(t, bare.MaxOutputTokens)
	require.Nil(t, bare.StopSequences)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.Completion{Provider: "cohere"})
	require.Error(t, err)

	c, err := New(context.Background(), config.Completion{Provider: config.ProviderOpenAI, BaseURL: "http://localhost:1"})
	require.NoError(t, err)
	require.NotNil(t, c)
}
