// Package server exposes the HTTP control surface: health, message
// submission, conversation management, and audit read-back.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tamalehq/tamalebot/internal/agent"
	"github.com/tamalehq/tamalebot/internal/audit"
	"github.com/tamalehq/tamalebot/internal/conversations"
	"github.com/tamalehq/tamalebot/internal/providers"
)

const (
	defaultChatID   = "default"
	defaultLogLimit = 50
	maxLogLimit     = 200
	errMsgCap       = 200 // chars of error text allowed across the boundary
)

// Options wires the server to the rest of the runtime.
type Options struct {
	AgentID       string
	AgentName     string
	Model         string
	Loop          *agent.Loop
	Conversations *conversations.Store
	Journal       *audit.Journal

	// RatePerMinute caps /message submissions; zero disables the limiter.
	RatePerMinute int
}

// Server handles the HTTP surface. Construct with New, mount via Handler.
type Server struct {
	opts    Options
	started time.Time

	rateMu     sync.Mutex
	rateWindow time.Time
	rateCount  int
}

func New(opts Options) *Server {
	return &Server{opts: opts, started: time.Now()}
}

// Handler returns the route table on a fresh mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /message", s.handleMessage)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /memory/stats", s.handleMemoryStats)
	return withCORS(mux)
}

// withCORS answers pre-flight requests and tags every response.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: response encode failed", "error", err)
	}
}

// capError trims an error message for external consumption.
func capError(err error) string {
	msg := err.Error()
	if len(msg) > errMsgCap {
		msg = msg[:errMsgCap]
	}
	return msg
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": capError(err)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"agentId":   s.opts.AgentID,
		"agentName": s.opts.AgentName,
		"model":     s.opts.Model,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// allowSubmission enforces the per-minute cap on message turns.
func (s *Server) allowSubmission() bool {
	if s.opts.RatePerMinute <= 0 {
		return true
	}
	s.rateMu.Lock()
	defer s.rateMu.Unlock()
	now := time.Now()
	if now.Sub(s.rateWindow) >= time.Minute {
		s.rateWindow = now
		s.rateCount = 0
	}
	if s.rateCount >= s.opts.RatePerMinute {
		return false
	}
	s.rateCount++
	return true
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		ChatID string `json:"chatId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	if !s.allowSubmission() {
		writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		return
	}
	chatID := req.ChatID
	if chatID == "" {
		chatID = defaultChatID
	}

	runID := uuid.NewString()
	slog.Info("message received", "run", runID, "chat", chatID, "chars", len(req.Text))

	var result *agent.Result
	err := s.opts.Conversations.Turn(r.Context(), chatID, func(history []providers.Message) ([]providers.Message, error) {
		res, updated, err := s.opts.Loop.Run(r.Context(), history, req.Text)
		if err != nil {
			// Provider failures leave the conversation untouched.
			return history, err
		}
		result = res
		return updated, nil
	})
	if err != nil {
		slog.Error("turn failed", "run", runID, "chat", chatID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"text": result.Text,
		"stats": map[string]any{
			"toolCalls":    result.ToolCallCount,
			"iterations":   result.Iterations,
			"inputTokens":  result.InputTokens,
			"outputTokens": result.OutputTokens,
			"tokens":       result.InputTokens + result.OutputTokens,
		},
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chatId"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // empty body clears the default chat
	}
	chatID := req.ChatID
	if chatID == "" {
		chatID = defaultChatID
	}
	s.opts.Conversations.Clear(r.Context(), chatID)
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "chatId": chatID})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	var decision audit.Decision
	switch v := r.URL.Query().Get("decision"); v {
	case "":
	case string(audit.DecisionAllowed), string(audit.DecisionBlocked):
		decision = audit.Decision(v)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown decision filter %q", v))
		return
	}

	entries, err := s.opts.Journal.Entries(s.opts.AgentID, audit.Filter{Limit: limit, Decision: decision})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Conversations.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationCount": st.Conversations,
		"totalMessages":     st.Messages,
	})
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully. The audit journal is flushed by the caller's shutdown path.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
