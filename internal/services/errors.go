package services

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError carries a user-facing rejection message for bad input:
// oversized uploads, disallowed types, corrupt images, protected PDFs.
// Validation errors are never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is an input-validation rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConversionError means every image-to-PDF strategy failed for one document.
// It is fatal for that document but must not abort a batch.
type ConversionError struct {
	Attempted []string
	Last      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf(
		"all PDF conversion strategies failed (%s): %v; try converting the image to PDF manually before uploading",
		strings.Join(e.Attempted, ", "), e.Last,
	)
}

func (e *ConversionError) Unwrap() error { return e.Last }
