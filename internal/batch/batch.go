package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pdfpress/internal/common"
	"pdfpress/internal/compression"
	"pdfpress/internal/config"
	"pdfpress/internal/pipeline"
	"pdfpress/internal/profile"
)

var ErrEmptyBatch = errors.New("batch contains no documents")

// Progress is a snapshot handed to the progress callback after each
// document reaches a terminal state.
type Progress struct {
	Completed             int
	Total                 int
	Fraction              float64
	RunningSavingsPercent float64
	LastResult            pipeline.Result
}

// ProgressFunc receives progress snapshots. It is called from worker
// goroutines but never concurrently.
type ProgressFunc func(Progress)

// Report is the aggregate outcome of a batch run. Results preserve
// submission order regardless of completion order.
type Report struct {
	BatchID              string
	Level                profile.Level
	Results              []pipeline.Result
	TotalOriginalBytes   int64
	TotalCompressedBytes int64
	SavingsPercent       float64
	Succeeded            int
	NoImprovement        int
	Failed               int
	PrimaryCount         int
	FallbackCount        int
	Duration             time.Duration
}

// SavedBytes is the total number of bytes shaved off across successful
// documents.
func (r *Report) SavedBytes() int64 {
	return r.TotalOriginalBytes - r.TotalCompressedBytes
}

// Orchestrator fans a batch of documents out over a bounded worker pool
// and folds the per-document results into a Report.
type Orchestrator struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

func NewOrchestrator(cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, pipeline: p, logger: logger}
}

// ProcessBatch runs every document to a terminal state and returns one
// result per submitted document, in submission order. A failed document
// never aborts its siblings; cancelling ctx stops scheduling new work and
// marks unstarted documents as failed.
func (o *Orchestrator) ProcessBatch(ctx context.Context, docs []pipeline.SourceDocument, level profile.Level, opts compression.Options, destDir string, onProgress ProgressFunc) (*Report, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyBatch
	}
	prof, err := profile.Resolve(level)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	batchID := common.GenerateUUID()
	logger := o.logger.With("batch", batchID, "documents", len(docs), "level", prof.Level)
	logger.Info("batch started")

	results := make([]pipeline.Result, len(docs))
	started := make([]bool, len(docs))

	var mu sync.Mutex
	completed := 0
	var runningOriginal, runningCompressed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxWorkers)

	for i, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		mu.Lock()
		started[i] = true
		mu.Unlock()
		i, doc := i, doc
		g.Go(func() error {
			res := o.pipeline.Process(gctx, doc, prof, opts, destDir)

			mu.Lock()
			defer mu.Unlock()
			results[i] = res
			completed++
			if res.Succeeded() {
				runningOriginal += res.OriginalSize
				runningCompressed += res.CompressedSize
			}
			if onProgress != nil {
				onProgress(Progress{
					Completed:             completed,
					Total:                 len(docs),
					Fraction:              float64(completed) / float64(len(docs)),
					RunningSavingsPercent: savings(runningOriginal, runningCompressed),
					LastResult:            res,
				})
			}
			return nil
		})
	}
	g.Wait()

	// Documents never handed to a worker still owe the caller a result.
	for i := range docs {
		if !started[i] {
			results[i] = pipeline.Result{
				ID:       docs[i].ID,
				Filename: docs[i].Filename,
				Status:   pipeline.StatusFailed,
				Reason:   "batch cancelled before processing started",
			}
		}
	}

	report := &Report{
		BatchID:  batchID,
		Level:    prof.Level,
		Results:  results,
		Duration: time.Since(start),
	}
	for _, res := range results {
		switch res.Status {
		case pipeline.StatusSucceeded:
			report.Succeeded++
		case pipeline.StatusNoImprovement:
			report.NoImprovement++
		default:
			report.Failed++
		}
		if res.Succeeded() {
			report.TotalOriginalBytes += res.OriginalSize
			report.TotalCompressedBytes += res.CompressedSize
			switch res.Backend {
			case compression.BackendPrimary:
				report.PrimaryCount++
			case compression.BackendFallback:
				report.FallbackCount++
			}
		}
	}
	report.SavingsPercent = savings(report.TotalOriginalBytes, report.TotalCompressedBytes)

	logger.Info("batch finished",
		"succeeded", report.Succeeded,
		"no_improvement", report.NoImprovement,
		"failed", report.Failed,
		"saved", common.FormatFileSize(report.SavedBytes()),
		"savings_percent", fmt.Sprintf("%.1f", report.SavingsPercent),
		"duration", report.Duration,
	)
	return report, nil
}

func savings(original, compressed int64) float64 {
	if original <= 0 || compressed >= original {
		return 0
	}
	return float64(original-compressed) / float64(original) * 100
}
