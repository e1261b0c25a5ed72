// Package server exposes session logs and reconstructed trees over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mariozechner/coding-agent/sessionview/pkg/loader"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store/jsonl"
)

// Options configures a Server.
type Options struct {
	// MaxDepth bounds sub-agent nesting for /api/tree.
	MaxDepth int
	// WatchInterval is how often /api/tree/watch polls the session file.
	WatchInterval time.Duration
}

// Server serves the session API.
type Server struct {
	manager       *jsonl.Manager
	loader        *loader.Loader
	watchInterval time.Duration
	srv           *http.Server
}

// New creates a new Server reading from manager.
func New(manager *jsonl.Manager, opts Options) *Server {
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = time.Second
	}
	return &Server{
		manager:       manager,
		loader:        loader.New(manager, loader.Options{MaxDepth: opts.MaxDepth}),
		watchInterval: opts.WatchInterval,
	}
}

// Handler returns the API routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("GET /api/subagent", s.handleGetSubAgent)
	mux.HandleFunc("GET /api/agents", s.handleDiscoverAgents)
	mux.HandleFunc("GET /api/tree", s.handleGetTree)

	// WebSocket
	mux.HandleFunc("GET /api/tree/watch", s.handleWatchTree)

	mux.HandleFunc("/api/", s.handleUnknown)

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting API server", "addr", addr, "root", s.manager.RootDir())
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// errorResponse writes {"error": msg, "code": "ERROR_<status>"}.
func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	if status >= http.StatusInternalServerError {
		slog.Error("API Error", "status", status, "error", msg)
	} else {
		slog.Debug("API Error", "status", status, "error", msg)
	}
	s.jsonResponse(w, status, map[string]string{
		"error": msg,
		"code":  fmt.Sprintf("ERROR_%d", status),
	})
}
