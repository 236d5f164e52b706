// Package api provides the REST and WebSocket server for the task
// engine dashboard.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/trellis-io/trellis/internal/events"
	"github.com/trellis-io/trellis/internal/manager"
)

// Server is the trellis API server.
type Server struct {
	addr   string
	mux    *http.ServeMux
	logger *slog.Logger

	manager   *manager.Manager
	publisher events.Publisher
	wsHandler *WSHandler
}

// Config holds server configuration.
type Config struct {
	Addr   string
	Logger *slog.Logger
}

// New creates a new API server over a manager. The publisher should be
// the same one the manager publishes to, so websocket clients see every
// committed mutation.
func New(m *manager.Manager, pub events.Publisher, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:8321"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:      addr,
		mux:       http.NewServeMux(),
		logger:    logger,
		manager:   m,
		publisher: pub,
	}
	s.wsHandler = NewWSHandler(pub, logger)
	s.registerRoutes()
	return s
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Tasks
	s.mux.HandleFunc("GET /api/tasks", cors(s.handleListTasks))
	s.mux.HandleFunc("POST /api/tasks", cors(s.handleCreateTask))
	s.mux.HandleFunc("GET /api/tasks/tree", cors(s.handleGetTree))
	s.mux.HandleFunc("GET /api/tasks/{id}", cors(s.handleGetTask))
	s.mux.HandleFunc("PATCH /api/tasks/{id}", cors(s.handleUpdateTask))
	s.mux.HandleFunc("DELETE /api/tasks/{id}", cors(s.handleDeleteTask))
	s.mux.HandleFunc("POST /api/tasks/{id}/move", cors(s.handleMoveTask))
	s.mux.HandleFunc("GET /api/tasks/{id}/children", cors(s.handleGetChildren))
	s.mux.HandleFunc("GET /api/tasks/{id}/tree", cors(s.handleGetSubtree))

	// Memory links
	s.mux.HandleFunc("GET /api/tasks/{id}/memories", cors(s.handleListMemories))
	s.mux.HandleFunc("POST /api/tasks/{id}/memories", cors(s.handleLinkMemory))
	s.mux.HandleFunc("DELETE /api/tasks/{id}/memories/{memoryId}", cors(s.handleUnlinkMemory))

	// Reconciliation on demand
	s.mux.HandleFunc("POST /api/sync", cors(s.handleSync))

	// WebSocket for real-time updates
	s.mux.Handle("GET /ws", s.wsHandler)
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}

// StartContext starts the API server and shuts it down gracefully when
// the context is cancelled.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		s.wsHandler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", s.addr)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]any{"status": "ok"})
}
