package compression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"pdfpress/internal/profile"
)

// Ghostscript drives the external Ghostscript binary as a subordinate
// process per document. It is the primary, higher-quality backend.
type Ghostscript struct {
	binPath    string
	timeoutFor func(sizeBytes int64) time.Duration
	logger     *slog.Logger
}

// NewGhostscript creates the primary compressor adapter. timeoutFor maps
// an input size to the wall-clock deadline for that document.
func NewGhostscript(binPath string, timeoutFor func(int64) time.Duration, logger *slog.Logger) *Ghostscript {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ghostscript{binPath: binPath, timeoutFor: timeoutFor, logger: logger}
}

// Backend identifies this compressor in processing results.
func (g *Ghostscript) Backend() Backend {
	return BackendPrimary
}

// Compress invokes Ghostscript with the profile's preset and waits for it
// under a size-proportional deadline. Non-zero exit, timeout, or output
// that fails re-parsing are all reported as backend errors so the caller
// can fall back.
func (g *Ghostscript) Compress(ctx context.Context, inputPath, outputPath string, prof profile.Profile, opts Options) error {
	if g.binPath == "" {
		return fmt.Errorf("%w: ghostscript binary not configured", ErrBackendFailure)
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}

	timeout := g.timeoutFor(info.Size())
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := g.buildArgs(outputPath, inputPath, prof, opts)

	start := time.Now()
	cmd := ExecCommandContext(runCtx, g.binPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			g.logger.Warn("ghostscript timed out", "input", inputPath, "timeout", timeout)
			return fmt.Errorf("%w after %v", ErrBackendTimeout, timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v, output: %s", ErrBackendFailure, err, string(output))
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil || outInfo.Size() == 0 {
		return fmt.Errorf("%w: ghostscript did not produce output", ErrBackendFailure)
	}

	// A zero exit with a half-written body must not become a success.
	if _, err := ValidatePDF(outputPath); err != nil {
		return fmt.Errorf("%w: output failed validation: %v", ErrBackendFailure, err)
	}

	// Ghostscript rewrites the document but keeps its info dictionary, so
	// metadata stripping happens as an in-process post-pass.
	if opts.StripMetadata {
		if err := stripMetadataFile(outputPath); err != nil {
			return fmt.Errorf("%w: metadata strip: %v", ErrBackendFailure, err)
		}
	}

	g.logger.Debug("ghostscript finished",
		"input", inputPath,
		"setting", prof.GhostscriptSetting,
		"duration", time.Since(start),
	)
	return nil
}

func (g *Ghostscript) buildArgs(outputPath, inputPath string, prof profile.Profile, opts Options) []string {
	args := []string{
		"-sDEVICE=pdfwrite",
		"-dPDFSETTINGS=" + prof.GhostscriptSetting,
		"-dCompatibilityLevel=1.4",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dAutoRotatePages=/None",
		"-dCompressFonts=true",
		"-dSubsetFonts=true",
		"-dOptimize=true",
	}

	if opts.OptimizeImages {
		args = append(args,
			"-dDownsampleColorImages=true",
			"-dDownsampleGrayImages=true",
			"-dDownsampleMonoImages=true",
			"-dColorImageDownsampleType=/Bicubic",
			fmt.Sprintf("-dColorImageResolution=%d", prof.ImageDPI),
			"-dGrayImageDownsampleType=/Bicubic",
			fmt.Sprintf("-dGrayImageResolution=%d", prof.ImageDPI),
			"-dMonoImageDownsampleType=/Bicubic",
			fmt.Sprintf("-dMonoImageResolution=%d", prof.ImageDPI),
			"-dAutoFilterColorImages=false",
			"-dColorImageFilter=/DCTEncode",
			fmt.Sprintf("-dJPEGQ=%d", prof.ImageQuality),
		)
	}

	return append(args, "-sOutputFile="+outputPath, inputPath)
}
