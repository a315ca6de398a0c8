// Package server provides the HTTP API for legal content search and embedding maintenance.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

// Searcher runs hybrid search.
type Searcher interface {
	Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error)
}

// EmbeddingService reports and maintains stored embeddings.
type EmbeddingService interface {
	Health(ctx context.Context) (*models.HealthReport, error)
	Backfill(ctx context.Context, opts models.BackfillOptions) (*models.BackfillReport, error)
}

// Server is the HTTP server for the search API.
type Server struct {
	engine     Searcher
	embeddings EmbeddingService
	config     config.ServerConfig
	logger     *zap.Logger
	server     *http.Server

	// Background backfill; at most one runs at a time.
	jobCtx      context.Context
	cancelJobs  context.CancelFunc
	backfilling atomic.Bool
	jobs        sync.WaitGroup
	lastMu      sync.Mutex
	lastReport  *models.BackfillReport
	lastErr     error
}

// NewServer creates a server with the given dependencies.
func NewServer(engine Searcher, embeddings EmbeddingService, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		engine:     engine,
		embeddings: embeddings,
		config:     cfg,
		logger:     logger,
		jobCtx:     jobCtx,
		cancelJobs: cancel,
	}
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/search", s.handleSearchGet)
		r.Get("/embeddings/stats", s.handleEmbeddingStats)
		r.Post("/embeddings/backfill", s.handleBackfill)
		r.Get("/embeddings/backfill", s.handleBackfillStatus)
	})
	r.Get("/health", s.handleHealth)

	return otelhttp.NewHandler(r, "lawsearch")
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and cancels a running backfill.
func (s *Server) Stop(ctx context.Context) error {
	s.cancelJobs()
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("backfill did not stop before shutdown deadline")
	}
	return err
}

// startBackfill runs opts in the background. It returns false when a backfill is running.
func (s *Server) startBackfill(opts models.BackfillOptions) bool {
	if !s.backfilling.CompareAndSwap(false, true) {
		return false
	}
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer s.backfilling.Store(false)

		report, err := s.embeddings.Backfill(s.jobCtx, opts)
		s.lastMu.Lock()
		s.lastReport, s.lastErr = report, err
		s.lastMu.Unlock()

		if err != nil {
			s.logger.Error("backfill failed", zap.Error(err))
			return
		}
		s.logger.Info("backfill finished", zap.Int("failed", report.FailedCount()))
	}()
	return true
}
