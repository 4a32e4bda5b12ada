package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AveryLor/BiasBreaker/internal/app"
	"github.com/AveryLor/BiasBreaker/internal/compose"
	"github.com/AveryLor/BiasBreaker/internal/config"
	"github.com/AveryLor/BiasBreaker/internal/conversation"
	"github.com/AveryLor/BiasBreaker/internal/logger"
	"github.com/AveryLor/BiasBreaker/internal/voices"
)

type queryRunner interface {
	Run(ctx context.Context, query string) (compose.Response, error)
}

type conversant interface {
	Converse(ctx context.Context, sessionID, query string) conversation.Reply
}

type healthChecker interface {
	Health(ctx context.Context) error
}

type voicesAnalyzer interface {
	Analyze(ctx context.Context, in voices.Input) (voices.Result, error)
}

type services struct {
	pipeline  queryRunner
	assistant conversant
	voices    voicesAnalyzer
	store     healthChecker
	close     func() error
}

type builder func(ctx context.Context) (*services, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd(buildServices).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildServices(ctx context.Context) (*services, error) {
	cfg, err := config.LoadAPI()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.Build(ctx, cfg, logger.New("cli"))
	if err != nil {
		return nil, err
	}
	return &services{pipeline: a.Pipeline, assistant: a.Assistant, voices: a.Voices, store: a.Store, close: a.Close}, nil
}

func newRootCmd(build builder) *cobra.Command {
	root := &cobra.Command{
		Use:          "biasbreaker",
		Short:        "Query the bias-diverse news pipeline",
		SilenceUsage: true,
	}

	var compact bool
	queryCmd := &cobra.Command{
		Use:   "query <text...>",
		Short: "Run one query through the pipeline and print the JSON response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			resp, err := svc.pipeline.Run(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("run query: %w", err)
			}
			return printJSON(cmd, resp, compact)
		},
	}
	queryCmd.Flags().BoolVar(&compact, "compact", false, "print JSON on a single line")

	var session string
	converseCmd := &cobra.Command{
		Use:   "converse <text...>",
		Short: "Ask the conversational assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			reply := svc.assistant.Converse(cmd.Context(), session, strings.Join(args, " "))
			return printJSON(cmd, reply, compact)
		},
	}
	converseCmd.Flags().StringVar(&session, "session", "", "session id to continue")
	converseCmd.Flags().BoolVar(&compact, "compact", false, "print JSON on a single line")

	var voicesIn voices.Input
	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "List perspectives an article leaves underrepresented",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			res, err := svc.voices.Analyze(cmd.Context(), voicesIn)
			if err != nil {
				return fmt.Errorf("analyze voices: %w", err)
			}
			return printJSON(cmd, res, compact)
		},
	}
	voicesCmd.Flags().StringVar(&voicesIn.ArticleID, "id", "", "id of a stored article")
	voicesCmd.Flags().StringVar(&voicesIn.Title, "title", "", "article title")
	voicesCmd.Flags().StringVar(&voicesIn.Body, "body", "", "article body")
	voicesCmd.Flags().BoolVar(&compact, "compact", false, "print JSON on a single line")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check the article store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := svc.store.Health(ctx); err != nil {
				return fmt.Errorf("store unhealthy: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	root.AddCommand(queryCmd, converseCmd, voicesCmd, healthCmd)
	return root
}

func printJSON(cmd *cobra.Command, v any, compact bool) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
