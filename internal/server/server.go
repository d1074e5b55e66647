// Package server exposes paper processing over a webhook API and MCP tools.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/apresai/paperq/internal/config"
	"github.com/apresai/paperq/internal/store"
)

// Version is reported in the MCP handshake.
var Version = "dev"

// Server is the webhook and MCP server.
type Server struct {
	cfg       config.Config
	jobs      store.JobStore
	questions store.QuestionStore
	tasks     *TaskManager
	mcp       *mcpserver.MCPServer
	log       *slog.Logger
}

// New wires handlers around an already configured task manager.
func New(cfg config.Config, jobs store.JobStore, questions store.QuestionStore, tasks *TaskManager, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		jobs:      jobs,
		questions: questions,
		tasks:     tasks,
		log:       logger,
	}

	s.mcp = mcpserver.NewMCPServer(
		"paperq",
		Version,
		mcpserver.WithToolCapabilities(true),
	)
	tools := ToolDefs()
	s.mcp.AddTool(tools[0], s.HandleExtractQuestions)
	s.mcp.AddTool(tools[1], s.HandleGetJob)
	s.mcp.AddTool(tools[2], s.HandleListJobs)
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", signatureHeader},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook/process-pdf", s.handleProcessPDF)
	r.Get("/status/{id}", s.handleStatus)
	r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcp, mcpserver.WithStateLess(true)))
	return r
}

// Start serves until ctx is cancelled, then drains for up to 8 seconds.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("Starting server", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutdown signal received, waiting for active tasks...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.log.Warn("Tasks still running at shutdown", "running", s.tasks.Running())
	}
	return nil
}
