package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/AveryLor/BiasBreaker/internal/compose"
	"github.com/AveryLor/BiasBreaker/internal/conversation"
	"github.com/AveryLor/BiasBreaker/internal/elasticsearch"
	"github.com/AveryLor/BiasBreaker/internal/voices"
)

const maxBodyBytes = 1 << 20

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

type server struct {
	log       *slog.Logger
	pipeline  queryRunner
	assistant conversant
	voices    voicesAnalyzer
	health    healthChecker
}

type chatRequest struct {
	Message string `json:"message"`
}

type converseRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/converse", s.handleConverse)
	r.Post("/api/voices", s.handleVoices)
	r.Get("/api/welcome-text", s.handleWelcome)
	return r
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "API is running"})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, compose.Error(""))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("chat handler panic",
				slog.Any("panic", rec),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			writeJSON(w, http.StatusOK, compose.Error(req.Message))
		}
	}()

	resp, err := s.pipeline.Run(r.Context(), req.Message)
	if err != nil {
		s.log.Error("chat request failed",
			slog.Any("err", err),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		writeJSON(w, http.StatusOK, compose.Error(req.Message))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleConverse(w http.ResponseWriter, r *http.Request) {
	var req converseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	writeJSON(w, http.StatusOK, s.assistant.Converse(r.Context(), strings.TrimSpace(req.SessionID), req.Message))
}

func (s *server) handleVoices(w http.ResponseWriter, r *http.Request) {
	var req voices.Input
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := s.voices.Analyze(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, voices.ErrNoArticle):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "article_id or title and body are required"})
	case errors.Is(err, elasticsearch.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "article not found"})
	default:
		s.log.Error("voices request failed",
			slog.Any("err", err),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "analysis failed"})
	}
}

func (s *server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"title":       "Welcome to BiasBreaker",
		"description": "Search the news and compare coverage across the bias spectrum.",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
