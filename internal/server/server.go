// Package server provides the HTTP API for the news agent.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/cleanup"
	"github.com/aijose/news-summary-agent-sub001/internal/config"
	"github.com/aijose/news-summary-agent-sub001/internal/ingest"
	"github.com/aijose/news-summary-agent-sub001/internal/retrieval"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
	"github.com/aijose/news-summary-agent-sub001/internal/summarize"
	"github.com/aijose/news-summary-agent-sub001/internal/vector"
)

// Server is the HTTP server for the news agent API.
type Server struct {
	store       storage.Store
	engine      *retrieval.Engine
	summarizer  *summarize.Summarizer
	coordinator *ingest.Coordinator
	runs        *ingest.Runs
	cleaner     *cleanup.Coordinator
	vectors     vector.Index
	config      *config.ServerConfig
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store storage.Store,
	engine *retrieval.Engine,
	summarizer *summarize.Summarizer,
	coordinator *ingest.Coordinator,
	runs *ingest.Runs,
	cleaner *cleanup.Coordinator,
	vectors vector.Index,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:       store,
		engine:      engine,
		summarizer:  summarizer,
		coordinator: coordinator,
		runs:        runs,
		cleaner:     cleaner,
		vectors:     vectors,
		config:      cfg,
		logger:      logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ingest", s.handleIngest)
	r.Get("/api/v1/ingest/runs/{id}", s.handleIngestRun)

	r.Post("/api/v1/search", s.handleSearch)

	r.Get("/api/v1/articles", s.handleListArticles)
	r.Get("/api/v1/articles/{id}", s.handleGetArticle)
	r.Get("/api/v1/articles/{id}/similar", s.handleSimilar)
	r.Post("/api/v1/articles/{id}/summary", s.handleSummary)
	r.Delete("/api/v1/articles/{id}/summaries", s.handleDeleteSummaries)

	r.Post("/api/v1/analysis/multi-perspective", s.handleMultiPerspective)

	r.Get("/api/v1/admin/cleanup/preview", s.handleCleanupPreview)
	r.Post("/api/v1/admin/cleanup", s.handleCleanup)
	r.Get("/api/v1/admin/orphans", s.handleOrphans)
	r.Get("/api/v1/admin/sources", s.handleSources)

	r.Get("/api/v1/reading-list", s.handleReadingList)
	r.Post("/api/v1/reading-list", s.handleReadingListAdd)
	r.Delete("/api/v1/reading-list/{id}", s.handleReadingListRemove)

	r.Get("/api/v1/feeds", s.handleFeeds)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
