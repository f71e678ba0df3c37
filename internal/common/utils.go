package common

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultFilePermissions is used for directories created for temp artifacts.
	DefaultFilePermissions = 0755

	// CompressedSuffix is appended to output filenames before the extension.
	CompressedSuffix = "_compressed"
)

// pdfHeader is the magic prefix every PDF starts with.
var pdfHeader = []byte("%PDF-")

// invalidFilenameChars matches characters unsafe on common filesystems.
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// GenerateUUID generates a new UUID string
func GenerateUUID() string {
	return uuid.New().String()
}

// CopyFile copies src to dst, creating parent directories as needed.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), DefaultFilePermissions); err != nil {
		return err
	}

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	return err
}

// LooksLikePDF reports whether data carries the PDF magic header.
func LooksLikePDF(data []byte) bool {
	return len(data) >= len(pdfHeader) && bytes.HasPrefix(data, pdfHeader)
}

// SanitizeFilename strips characters that are invalid on common filesystems
// and bounds the name to 255 characters.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, ". ")

	if len(sanitized) > 255 {
		ext := filepath.Ext(sanitized)
		stem := strings.TrimSuffix(sanitized, ext)
		maxStem := 255 - len(ext)
		if maxStem < 0 {
			maxStem = 0
		}
		if len(stem) > maxStem {
			stem = stem[:maxStem]
		}
		sanitized = stem + ext
	}

	if sanitized == "" {
		return "unnamed_file"
	}
	return sanitized
}

// CompressedFilename derives the output name for a compressed document,
// e.g. "report.pdf" -> "report_compressed.pdf".
func CompressedFilename(original string) string {
	base := SanitizeFilename(filepath.Base(original))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".pdf"
	}
	return stem + CompressedSuffix + ext
}

// FormatFileSize renders a byte count in human-readable form.
func FormatFileSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024.0 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.2f TB", value)
}
