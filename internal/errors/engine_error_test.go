package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/divmat/internal/errors"
)

func TestEngineErrorMessage(t *testing.T) {
	err := &errors.EngineError{Op: "Run", Chunk: 4, Message: "worker failed"}
	assert.Equal(t, "Run operation failed on chunk 4: worker failed", err.Error())

	err = &errors.EngineError{Op: "Partition", Chunk: errors.NoChunk, Message: "bad range"}
	assert.Equal(t, "Partition operation failed: bad range", err.Error())
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("out of memory")
	err := errors.NewWorkerFailure("Run", 2, cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestIsMatchesByFields(t *testing.T) {
	err := errors.NewPartitionError("Partition", "range must satisfy 0 <= begin <= end")
	assert.ErrorIs(t, err, errors.ErrInvalidRange)

	other := errors.NewPartitionError("Partition", "grain must be non-negative")
	assert.NotErrorIs(t, other, errors.ErrInvalidRange)
	assert.ErrorIs(t, other, errors.ErrNegativeGrain)
}

func TestWorkerFailureCarriesChunk(t *testing.T) {
	err := errors.NewWorkerFailure("Run", 7, fmt.Errorf("boom"))

	var ee *errors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 7, ee.Chunk)
	assert.Contains(t, err.Error(), "chunk 7")
}

func TestPoolError(t *testing.T) {
	cause := fmt.Errorf("no threads")
	err := errors.NewPoolError("Pool", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "worker pool unavailable")
}

func TestDimensionError(t *testing.T) {
	err := errors.NewDimensionError("Matrix", 3, 4, 10)
	assert.Contains(t, err.Error(), "buffer length 10 does not match 3x4")
}

func TestWrappedThroughFmt(t *testing.T) {
	inner := errors.NewInvalidInputError("Compute", "input matrix is nil")
	outer := fmt.Errorf("computing distances: %w", inner)

	var ee *errors.EngineError
	require.ErrorAs(t, outer, &ee)
	assert.Equal(t, "Compute", ee.Op)
}
