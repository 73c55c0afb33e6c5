// Package core defines the error taxonomy shared across the pipeline.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the recoverable failure classes. Callers wrap
// these with %w and branch with errors.Is.
var (
	// ErrKnowledgeRetrieval means the persistent store was unreachable
	// while loading knowledge items. Recovered locally by serving the
	// stale cache or built-in defaults.
	ErrKnowledgeRetrieval = errors.New("knowledge retrieval failure")

	// ErrCompletionService means the completion service timed out,
	// returned malformed output, or refused the request. Recovered by
	// the deterministic template path.
	ErrCompletionService = errors.New("completion service failure")

	// ErrPersistence means a write to the persistent store failed. The
	// session keeps operating from the in-memory cache while a
	// background retry reattempts the write.
	ErrPersistence = errors.New("persistence failure")

	// ErrValidation means a caller-supplied value was rejected at a
	// component boundary with no state mutation.
	ErrValidation = errors.New("validation failure")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Validationf builds a wrapped validation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
