// Package errors provides standardized error types for engine operations.
// This package defines EngineError for consistent error handling across
// all public APIs, with operation context and error wrapping support.
package errors

import (
	"fmt"
)

// NoChunk marks an EngineError that is not tied to a particular chunk.
const NoChunk = -1

// EngineError represents standardized errors across all engine operations
type EngineError struct {
	Op      string // Operation name (e.g., "Partition", "Run", "Compute")
	Chunk   int    // Chunk index if applicable, NoChunk otherwise
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Chunk != NoChunk {
		return fmt.Sprintf("%s operation failed on chunk %d: %s", e.Op, e.Chunk, e.Message)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is()
func (e *EngineError) Is(target error) bool {
	if ee, ok := target.(*EngineError); ok {
		return e.Op == ee.Op && e.Chunk == ee.Chunk && e.Message == ee.Message
	}
	return false
}

// Common error constructors for consistent error creation

// NewPartitionError creates an error for malformed ranges or grains
func NewPartitionError(op, message string) *EngineError {
	return &EngineError{
		Op:      op,
		Chunk:   NoChunk,
		Message: message,
	}
}

// NewWorkerFailure creates an error for a computation failure inside one chunk
func NewWorkerFailure(op string, chunk int, cause error) *EngineError {
	return &EngineError{
		Op:      op,
		Chunk:   chunk,
		Message: "worker failed",
		Cause:   cause,
	}
}

// NewPoolError creates an error for worker pool lifecycle failures
func NewPoolError(op string, cause error) *EngineError {
	return &EngineError{
		Op:      op,
		Chunk:   NoChunk,
		Message: "worker pool unavailable",
		Cause:   cause,
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *EngineError {
	return &EngineError{
		Op:      op,
		Chunk:   NoChunk,
		Message: message,
	}
}

// NewDimensionError creates an error for mismatched matrix dimensions
func NewDimensionError(op string, rows, cols, dataLen int) *EngineError {
	return &EngineError{
		Op:      op,
		Chunk:   NoChunk,
		Message: fmt.Sprintf("buffer length %d does not match %dx%d", dataLen, rows, cols),
	}
}

// Predefined error variables for common cases
var (
	// ErrInvalidRange indicates a range with begin > end or negative begin
	ErrInvalidRange = &EngineError{
		Op:      "Partition",
		Chunk:   NoChunk,
		Message: "range must satisfy 0 <= begin <= end",
	}

	// ErrNegativeGrain indicates a negative grain parameter
	ErrNegativeGrain = &EngineError{
		Op:      "Partition",
		Chunk:   NoChunk,
		Message: "grain must be non-negative",
	}

	// ErrNegativeWorkers indicates an invalid worker count
	ErrNegativeWorkers = &EngineError{
		Op:      "Pool",
		Chunk:   NoChunk,
		Message: "worker count must be non-negative",
	}
)
