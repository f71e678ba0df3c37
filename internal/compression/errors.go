package compression

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Primary backend errors are recovered by falling
// back in the pipeline; the rest surface as a failed result for the
// affected document only.
var (
	// ErrBackendTimeout: the primary backend exceeded its wall-clock deadline.
	ErrBackendTimeout = errors.New("primary backend timed out")
	// ErrBackendFailure: non-zero exit, or empty/corrupt primary output.
	ErrBackendFailure = errors.New("primary backend failed")
	// ErrCorruptInput: the document cannot be parsed.
	ErrCorruptInput = errors.New("document cannot be parsed")
	// ErrUnsupportedFeature: e.g. an encrypted document.
	ErrUnsupportedFeature = errors.New("document uses an unsupported feature")
	// ErrDocumentTooLarge: input exceeds the configured hard ceiling.
	ErrDocumentTooLarge = errors.New("document exceeds size ceiling")
	// ErrStorageIO: temp-storage read/write failure.
	ErrStorageIO = errors.New("storage i/o failure")
)

// Error wraps a taxonomy error with the operation and document it occurred on.
type Error struct {
	Op       string
	Document string
	Err      error
}

func (e *Error) Error() string {
	if e.Document != "" {
		return fmt.Sprintf("compression %s failed for %s: %v", e.Op, e.Document, e.Err)
	}
	return fmt.Sprintf("compression %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a wrapped compression error.
func NewError(op, document string, err error) *Error {
	return &Error{Op: op, Document: document, Err: err}
}
