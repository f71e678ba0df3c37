// Package compression provides the two compression backends (Ghostscript
// as the primary, pdfcpu in-process as the fallback) behind a single
// Compressor interface, plus the availability probe that gates backend
// selection.
package compression

import (
	"context"

	"pdfpress/internal/profile"
)

// Backend identifies which compressor produced an output.
type Backend string

const (
	// BackendPrimary is the external Ghostscript process.
	BackendPrimary Backend = "ghostscript"
	// BackendFallback is the in-process pdfcpu compressor.
	BackendFallback Backend = "pdfcpu"
)

// Options are the per-batch processing flags, applied uniformly to every
// document in the batch.
type Options struct {
	// OptimizeImages enables downsampling and re-encoding of embedded
	// raster images at the profile's resolution and quality.
	OptimizeImages bool
	// StripMetadata clears document information fields (author, dates).
	StripMetadata bool
}

// DefaultOptions returns the flags used when the caller supplies none.
func DefaultOptions() Options {
	return Options{OptimizeImages: true, StripMetadata: false}
}

// Compressor rewrites the document at inputPath into outputPath according
// to the profile and options. Implementations must not modify the input
// and must not report success for partially written output.
type Compressor interface {
	Compress(ctx context.Context, inputPath, outputPath string, prof profile.Profile, opts Options) error
	Backend() Backend
}
