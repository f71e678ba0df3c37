package compression

import (
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ValidatePDF re-parses the document at path and returns its page count.
// A partially written or structurally broken file fails here instead of
// being reported as a successful compression.
func ValidatePDF(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return 0, classifyParseError(err)
	}
	if ctx.PageCount < 1 {
		return 0, fmt.Errorf("%w: document has no pages", ErrCorruptInput)
	}
	return ctx.PageCount, nil
}

// classifyParseError maps pdfcpu parse failures onto the engine taxonomy.
func classifyParseError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		return fmt.Errorf("%w: %v", ErrUnsupportedFeature, err)
	}
	return fmt.Errorf("%w: %v", ErrCorruptInput, err)
}
