// Package pipeline drives a single document through backend selection,
// compression, validation and result assembly. Every document submitted
// yields exactly one Result, success or failure.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pdfpress/internal/common"
	"pdfpress/internal/compression"
	"pdfpress/internal/config"
	"pdfpress/internal/profile"
)

// Status is the terminal state of a document's processing.
type Status string

const (
	// StatusSucceeded: output is valid and smaller than the input.
	StatusSucceeded Status = "succeeded"
	// StatusNoImprovement: output is valid but not smaller; the original
	// payload is kept. Not an error.
	StatusNoImprovement Status = "succeeded_no_improvement"
	// StatusFailed: no usable output was produced.
	StatusFailed Status = "failed"
)

// SourceDocument is one uploaded document. Exactly one of Data or Path is
// set: in-memory payloads come from HTTP uploads, paths from the CLI.
type SourceDocument struct {
	ID       string
	Filename string
	Data     []byte
	Path     string
}

func (d SourceDocument) size() (int64, error) {
	if d.Path != "" {
		info, err := os.Stat(d.Path)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
		}
		return info.Size(), nil
	}
	return int64(len(d.Data)), nil
}

func (d SourceDocument) sniff() (bool, error) {
	if d.Path != "" {
		f, err := os.Open(d.Path)
		if err != nil {
			return false, fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
		}
		defer f.Close()
		header := make([]byte, 8)
		n, _ := f.Read(header)
		return common.LooksLikePDF(header[:n]), nil
	}
	return common.LooksLikePDF(d.Data), nil
}

// Result is the outcome of processing one document.
type Result struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`

	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	SavingsPercent float64 `json:"savings_percent"`

	Backend compression.Backend `json:"backend,omitempty"`
	Status  Status              `json:"status"`
	// Reason is human-readable and set for failed and no-improvement
	// outcomes.
	Reason string `json:"reason,omitempty"`

	// OutputPath is the published artifact, owned by the caller once the
	// result is emitted. Empty for failed documents.
	OutputPath string `json:"-"`
	// Data holds the artifact for documents processed in memory.
	Data []byte `json:"-"`

	// RecommendedLevel suggests a quality level for this input size.
	RecommendedLevel profile.Level `json:"recommended_level"`

	Duration time.Duration `json:"duration_ns"`
}

// Succeeded reports whether the document produced a usable artifact.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded || r.Status == StatusNoImprovement
}

// Pipeline processes documents one at a time. It is safe for concurrent
// use by multiple workers; each call owns its worker-private temp dir.
type Pipeline struct {
	cfg      *config.Config
	probe    *compression.Probe
	primary  compression.Compressor
	fallback compression.Compressor
	logger   *slog.Logger
}

// New wires a pipeline from its collaborators.
func New(cfg *config.Config, probe *compression.Probe, primary, fallback compression.Compressor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, probe: probe, primary: primary, fallback: fallback, logger: logger}
}

// Process runs one document to a terminal state and publishes the output
// artifact into destDir as "<id>.pdf". It never returns an error: failures
// are carried in the Result so one broken document cannot abort a batch.
func (p *Pipeline) Process(ctx context.Context, doc SourceDocument, prof profile.Profile, opts compression.Options, destDir string) Result {
	start := time.Now()
	logger := p.logger.With("document", doc.Filename, "id", doc.ID)

	res := Result{ID: doc.ID, Filename: doc.Filename}
	fail := func(reason error) Result {
		res.Status = StatusFailed
		res.Reason = reason.Error()
		res.Duration = time.Since(start)
		logger.Warn("document failed", "reason", res.Reason)
		return res
	}

	size, err := doc.size()
	if err != nil {
		return fail(err)
	}
	res.OriginalSize = size
	res.RecommendedLevel = profile.Recommend(size)

	if size > p.cfg.MaxDocumentBytes {
		return fail(fmt.Errorf("%w: %s exceeds %s ceiling",
			compression.ErrDocumentTooLarge,
			common.FormatFileSize(size),
			common.FormatFileSize(p.cfg.MaxDocumentBytes)))
	}

	if ok, err := doc.sniff(); err != nil {
		return fail(err)
	} else if !ok {
		return fail(fmt.Errorf("%w: missing PDF header", compression.ErrCorruptInput))
	}

	workDir, err := os.MkdirTemp(p.cfg.WorkingDir, "doc-"+doc.ID+"-")
	if err != nil {
		return fail(fmt.Errorf("%w: %v", compression.ErrStorageIO, err))
	}
	defer os.RemoveAll(workDir)

	handle, err := p.acquireHandle(doc, workDir)
	if err != nil {
		return fail(err)
	}
	defer handle.Cleanup()

	inputPath, err := handle.Materialize(workDir)
	if err != nil {
		return fail(err)
	}
	outputPath := filepath.Join(workDir, "output.pdf")

	backend, err := p.compress(ctx, inputPath, outputPath, prof, opts, logger)
	if err != nil {
		return fail(err)
	}
	res.Backend = backend

	// Validating: a compression that did not shrink the file is not an
	// error, but it must never pass as a plain success either.
	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", compression.ErrStorageIO, err))
	}
	artifactPath := outputPath
	if outInfo.Size() >= size {
		res.Status = StatusNoImprovement
		res.CompressedSize = size
		res.Reason = fmt.Sprintf("no size reduction (%s -> %s), keeping original",
			common.FormatFileSize(size), common.FormatFileSize(outInfo.Size()))
		artifactPath = inputPath
	} else {
		res.Status = StatusSucceeded
		res.CompressedSize = outInfo.Size()
	}
	res.SavingsPercent = savingsPercent(size, res.CompressedSize)

	if err := p.publish(&res, artifactPath, destDir, size); err != nil {
		return fail(err)
	}

	res.Duration = time.Since(start)
	logger.Info("document processed",
		"status", res.Status,
		"backend", res.Backend,
		"original", res.OriginalSize,
		"compressed", res.CompressedSize,
		"savings_percent", fmt.Sprintf("%.1f", res.SavingsPercent),
	)
	return res
}

func (p *Pipeline) acquireHandle(doc SourceDocument, workDir string) (DataHandle, error) {
	if doc.Path != "" {
		return HandleFromFile(doc.Path)
	}
	return NewHandle(doc.Data, p.cfg.MemoryThreshold, workDir)
}

// compress selects the backend and runs it. A primary failure is recovered
// by a single fallback attempt; a fallback failure after a primary failure
// reports both reasons.
func (p *Pipeline) compress(ctx context.Context, inputPath, outputPath string, prof profile.Profile, opts compression.Options, logger *slog.Logger) (compression.Backend, error) {
	var primaryErr error

	if p.probe.Available(ctx) {
		err := p.primary.Compress(ctx, inputPath, outputPath, prof, opts)
		if err == nil {
			p.probe.ReportSuccess()
			return p.primary.Backend(), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.probe.ReportFailure()
		primaryErr = err
		logger.Warn("primary backend failed, falling back", "error", err)
	}

	if err := p.fallback.Compress(ctx, inputPath, outputPath, prof, opts); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if primaryErr != nil {
			return "", fmt.Errorf("primary: %v; fallback: %w", primaryErr, err)
		}
		return "", err
	}
	return p.fallback.Backend(), nil
}

// publish moves the artifact out of the worker-private temp dir into
// destDir, transferring ownership to the caller. Documents processed in
// memory also carry their payload in Result.Data.
func (p *Pipeline) publish(res *Result, artifactPath, destDir string, size int64) error {
	if err := os.MkdirAll(destDir, common.DefaultFilePermissions); err != nil {
		return fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
	}

	destPath := filepath.Join(destDir, res.ID+".pdf")
	if err := common.CopyFile(artifactPath, destPath); err != nil {
		return fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
	}
	res.OutputPath = destPath

	if size < p.cfg.MemoryThreshold {
		data, err := os.ReadFile(destPath)
		if err != nil {
			return fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
		}
		res.Data = data
	}
	return nil
}

// savingsPercent computes the fractional size reduction as a percentage,
// clamped to 0..100.
func savingsPercent(original, compressed int64) float64 {
	if original == 0 {
		return 0
	}
	savings := float64(original-compressed) / float64(original) * 100
	if savings < 0 {
		return 0
	}
	if savings > 100 {
		return 100
	}
	return savings
}
