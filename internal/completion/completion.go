// Package completion defines the text-completion contract the pipeline
// depends on and the backends that satisfy it.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AveryLor/BiasBreaker/internal/config"
)

// ErrEmptyCompletion is returned when a backend answers with no text.
var ErrEmptyCompletion = errors.New("completion: empty response")

// Request is a prompt plus generation parameters.
type Request struct {
	Prompt        string
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

// Client generates text for a prompt.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// WithTimeout bounds every call made through c.
func WithTimeout(c Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return c
	}
	return ClientFunc(func(ctx context.Context, req Request) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return c.Complete(ctx, req)
	})
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg config.Completion) (Client, error) {
	var (
		c   Client
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderGemini:
		c, err = NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
	case config.ProviderOpenAI:
		c = NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(c, cfg.Timeout), nil
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
