package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"pdfpress/internal/compression"
)

// DataHandle gives the pipeline a storage-agnostic view of a document
// payload: small documents stay in memory, large ones live in a
// worker-private temp file. Either way the compressors see a file path.
type DataHandle interface {
	// Size returns the payload size in bytes.
	Size() int64
	// Materialize ensures the payload exists as a file under dir and
	// returns its path. Repeated calls return the same path.
	Materialize(dir string) (string, error)
	// Bytes returns the payload. For file-backed handles this reads from
	// disk.
	Bytes() ([]byte, error)
	// Cleanup removes any artifact the handle created.
	Cleanup()
}

// memoryHandle holds the payload in memory until a compressor needs a path.
type memoryHandle struct {
	data []byte
	path string
}

func (h *memoryHandle) Size() int64 {
	return int64(len(h.data))
}

func (h *memoryHandle) Materialize(dir string) (string, error) {
	if h.path != "" {
		return h.path, nil
	}
	path := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(path, h.data, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
	}
	h.path = path
	return path, nil
}

func (h *memoryHandle) Bytes() ([]byte, error) {
	return h.data, nil
}

func (h *memoryHandle) Cleanup() {
	if h.path != "" {
		os.Remove(h.path)
		h.path = ""
	}
}

// fileHandle wraps an existing file. It never loads the whole payload
// unless Bytes is explicitly requested, keeping peak memory bounded for
// large documents. owned handles delete their file on Cleanup.
type fileHandle struct {
	path  string
	size  int64
	owned bool
}

func (h *fileHandle) Size() int64 {
	return h.size
}

func (h *fileHandle) Materialize(string) (string, error) {
	return h.path, nil
}

func (h *fileHandle) Bytes() ([]byte, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
	}
	return data, nil
}

func (h *fileHandle) Cleanup() {
	if h.owned {
		os.Remove(h.path)
	}
}

// NewHandle selects the memory strategy for a byte payload: below the
// threshold the payload stays in memory, at or above it the payload is
// spilled to a temp file under dir.
func NewHandle(data []byte, threshold int64, dir string) (DataHandle, error) {
	if int64(len(data)) < threshold {
		return &memoryHandle{data: data}, nil
	}

	path := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
	}
	return &fileHandle{path: path, size: int64(len(data)), owned: true}, nil
}

// HandleFromFile wraps an existing file without taking ownership of it.
func HandleFromFile(path string) (DataHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", compression.ErrStorageIO, err)
	}
	return &fileHandle{path: path, size: info.Size()}, nil
}
