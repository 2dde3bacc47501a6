package models

import (
	"errors"
	"fmt"
)

// SchemaViolationError reports a value that failed contract validation.
// Path points at the offending field, e.g. "exercise[2].options[1]".
type SchemaViolationError struct {
	Path   string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation at %s: %s", e.Path, e.Reason)
}

// Violation builds a SchemaViolationError for path.
func Violation(path, format string, args ...any) error {
	return &SchemaViolationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// IsSchemaViolation reports whether err is (or wraps) a SchemaViolationError.
func IsSchemaViolation(err error) bool {
	var sv *SchemaViolationError
	return errors.As(err, &sv)
}

// UpstreamError reports an AI service that exhausted its attempt budget.
type UpstreamError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// MediaToolError reports a media toolchain subprocess failure with the tail
// of its stderr attached.
type MediaToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *MediaToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *MediaToolError) Unwrap() error { return e.Err }
