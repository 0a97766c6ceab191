package formats

import (
	"errors"
	"fmt"

	"github.com/Faultbox/neuroview/pkg/binparse"
)

// ErrFormat is matched by every structural decoding error.
var ErrFormat = errors.New("format error")

// ErrTruncated is matched when a file ends before its declared contents.
var ErrTruncated = binparse.ErrTruncated

// FormatError reports input whose structure is invalid for its format.
type FormatError struct {
	Format string // "MRIS", "CRV" or "TRK"
	Err    error  // Specific sentinel, e.g. ErrInvalidCRVMagic
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %v", e.Format, e.Err)
}

// Unwrap exposes both ErrFormat and the specific cause to errors.Is.
func (e *FormatError) Unwrap() []error {
	return []error{ErrFormat, e.Err}
}

func formatErr(format string, err error) error {
	return &FormatError{Format: format, Err: err}
}
