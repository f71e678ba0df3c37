// Package profile defines the named compression quality presets and their
// numeric parameters. The table is static; profiles are resolved once per
// batch and shared read-only across workers.
package profile

import (
	"fmt"
	"strings"
)

// Level identifies a compression strength preset.
type Level string

const (
	// Maximum trades the most visual fidelity for the smallest output.
	Maximum Level = "maximum"
	// High suits ebook-style reading quality.
	High Level = "high"
	// Medium is the default, print-oriented quality.
	Medium Level = "medium"
	// Low preserves prepress quality with light compression.
	Low Level = "low"
)

// DefaultLevel is used when the caller does not pick a level.
const DefaultLevel = Medium

// Profile holds the compression parameters for one quality level.
type Profile struct {
	Level        Level
	Name         string
	// ImageDPI is the target raster resolution for downsampled images.
	ImageDPI int
	// ImageQuality is the JPEG encoding quality, 0-100.
	ImageQuality int
	// GhostscriptSetting is the -dPDFSETTINGS preset for the primary backend.
	GhostscriptSetting string
}

// MaxImageDimension is the largest pixel dimension the fallback compressor
// keeps before downscaling, derived from the profile DPI.
func (p Profile) MaxImageDimension() int {
	return p.ImageDPI * 10
}

// Ordered from strongest to weakest compression. Higher compression always
// means lower DPI and lower encoding quality.
var table = map[Level]Profile{
	Maximum: {Level: Maximum, Name: "Maximum Compression", ImageDPI: 72, ImageQuality: 30, GhostscriptSetting: "/screen"},
	High:    {Level: High, Name: "High Compression", ImageDPI: 150, ImageQuality: 50, GhostscriptSetting: "/ebook"},
	Medium:  {Level: Medium, Name: "Medium Compression", ImageDPI: 200, ImageQuality: 70, GhostscriptSetting: "/printer"},
	Low:     {Level: Low, Name: "Low Compression", ImageDPI: 300, ImageQuality: 85, GhostscriptSetting: "/prepress"},
}

// Levels lists all known levels from strongest to weakest compression.
func Levels() []Level {
	return []Level{Maximum, High, Medium, Low}
}

// Resolve maps a level identifier to its Profile. The lookup is
// case-insensitive. Unknown identifiers fail with ErrUnknownLevel.
func Resolve(level Level) (Profile, error) {
	p, ok := table[Level(strings.ToLower(string(level)))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	return p, nil
}

// Recommend suggests a level based on input size: small files rarely need
// aggressive downsampling, large ones benefit from it.
func Recommend(sizeBytes int64) Level {
	mb := sizeBytes / (1024 * 1024)
	switch {
	case mb < 5:
		return Medium
	case mb < 20:
		return High
	default:
		return Maximum
	}
}
