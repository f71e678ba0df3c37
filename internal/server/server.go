package server

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pdfpress/internal/batch"
	"pdfpress/internal/common"
	"pdfpress/internal/config"
	"pdfpress/internal/stats"
)

// batchRecord is a finished batch retained in memory so its artifacts can
// be fetched until the batch is deleted or the server stops.
type batchRecord struct {
	Report  *batch.Report
	DestDir string
	Created time.Time
}

// Server exposes the compression engine over HTTP.
type Server struct {
	cfg          *config.Config
	orchestrator *batch.Orchestrator
	store        *stats.Store
	logger       *slog.Logger

	mu      sync.RWMutex
	batches map[string]*batchRecord
}

func New(cfg *config.Config, orchestrator *batch.Orchestrator, store *stats.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		logger:       logger,
		batches:      make(map[string]*batchRecord),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/batches", s.handleCreateBatch)
		r.Get("/batches/{batchID}", s.handleGetBatch)
		r.Get("/batches/{batchID}/files/{index}", s.handleGetFile)
		r.Get("/batches/{batchID}/archive", s.handleGetArchive)
		r.Delete("/batches/{batchID}", s.handleDeleteBatch)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func (s *Server) register(report *batch.Report, destDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[report.BatchID] = &batchRecord{
		Report:  report,
		DestDir: destDir,
		Created: time.Now(),
	}
}

func (s *Server) lookup(batchID string) (*batchRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.batches[batchID]
	return rec, ok
}

func (s *Server) remove(batchID string) (*batchRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.batches[batchID]
	if ok {
		delete(s.batches, batchID)
	}
	return rec, ok
}

// newBatchDir allocates an artifact directory for one batch under the
// working directory.
func (s *Server) newBatchDir() (string, error) {
	dir := filepath.Join(s.cfg.WorkingDir, "batch-"+common.GenerateUUID())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
