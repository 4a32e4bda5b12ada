package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AveryLor/BiasBreaker/internal/compose"
	"github.com/AveryLor/BiasBreaker/internal/conversation"
	"github.com/AveryLor/BiasBreaker/internal/voices"
)

type stubRunner struct{ query string }

func (s *stubRunner) Run(_ context.Context, query string) (compose.Response, error) {
	s.query = query
	return compose.Compose(query, nil, nil, nil), nil
}

type stubConversant struct{ session string }

func (s *stubConversant) Converse(_ context.Context, sessionID, query string) conversation.Reply {
	s.session = sessionID
	return conversation.Reply{SessionID: sessionID, Response: "re: " + query}
}

type stubVoices struct{ in voices.Input }

func (s *stubVoices) Analyze(_ context.Context, in voices.Input) (voices.Result, error) {
	s.in = in
	if in.ArticleID == "" && in.Title == "" {
		return voices.Result{}, voices.ErrNoArticle
	}
	return voices.Result{Title: in.Title, Recommendations: []string{"interview nurses"}}, nil
}

type stubStore struct{ err error }

func (s stubStore) Health(context.Context) error { return s.err }

func execute(t *testing.T, svc *services, args ...string) (string, error) {
	t.Helper()
	closed := false
	svc.close = func() error { closed = true; return nil }

	cmd := newRootCmd(func(context.Context) (*services, error) { return svc, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	require.True(t, closed)
	return out.String(), err
}

func TestQueryCommandJoinsArgs(t *testing.T) {
	runner := &stubRunner{}
	out, err := execute(t, &services{pipeline: runner}, "query", "--compact", "climate", "policy")
	require.NoError(t, err)
	require.Equal(t, "climate policy", runner.query)

	var resp compose.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "No articles found", resp.Message)
}

func TestConverseCommand(t *testing.T) {
	conv := &stubConversant{}
	out, err := execute(t, &services{assistant: conv}, "converse", "--session", "abc", "hello")
	require.NoError(t, err)
	require.Equal(t, "abc", conv.session)
	require.Contains(t, out, `"response": "re: hello"`)
}

func TestHealthCommand(t *testing.T) {
	out, err := execute(t, &services{store: stubStore{}}, "health")
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)

	_, err = execute(t, &services{store: stubStore{err: errors.New("red")}}, "health")
	require.ErrorContains(t, err, "store unhealthy")
}

func TestBuildFailureStopsCommand(t *testing.T) {
	cmd := newRootCmd(func(context.Context) (*services, error) { return nil, errors.New("no config") })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"health"})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "no config")
}

func TestVoicesCommand(t *testing.T) {
	v := &stubVoices{}
	out, err := execute(t, &services{voices: v}, "voices", "--title", "Rural clinics close", "--body", "Three clinics closed.")
	require.NoError(t, err)
	require.Equal(t, "Three clinics closed.", v.in.Body)
	require.Contains(t, out, `"interview nurses"`)

	_, err = execute(t, &services{voices: &stubVoices{}}, "voices")
	require.ErrorIs(t, err, voices.ErrNoArticle)
}
