// Package testutil provides common testing utilities for the divmat engine.
//
// It consolidates the helpers the package tests share: row-normalized random
// input matrices, an independent serial reference implementation of the
// distance matrix, and tolerance assertions.
package testutil

import (
	"math"
	"math/rand"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/paveg/divmat/internal/matrix"
)

// TestMemoryContext provides a memory allocator with automatic cleanup.
type TestMemoryContext struct {
	Allocator memory.Allocator
	cleanup   func()
}

// Release performs cleanup of the memory context.
func (tmc *TestMemoryContext) Release() {
	if tmc.cleanup != nil {
		tmc.cleanup()
	}
}

// SetupMemoryTest creates a memory allocator for arrow interop tests.
// Returns a TestMemoryContext that should be released with defer.
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	allocator := memory.NewGoAllocator()

	return &TestMemoryContext{
		Allocator: allocator,
		cleanup: func() {
			// Allocator cleanup is handled by the Go GC; the context keeps
			// test setup uniform across packages.
		},
	}
}

// RandomNormalizedMatrix returns a rows x cols matrix with non-negative
// entries where every row sums to 1, generated deterministically from seed.
func RandomNormalizedMatrix(tb testing.TB, rows, cols int, seed int64) *matrix.Matrix {
	tb.Helper()
	require.Positive(tb, cols, "normalized rows need at least one column")

	rng := rand.New(rand.NewSource(seed))
	m := matrix.New(rows, cols)
	for i := 0; i < rows; i++ {
		row := m.Row(i)
		var sum float64
		for k := range row {
			row[k] = rng.Float64()
			sum += row[k]
		}
		for k := range row {
			row[k] /= sum
		}
	}
	return m
}

// SerialJensenShannon is the straightforward double-loop reference
// implementation the engine's output is checked against. It is written
// independently of the kernel package on purpose.
func SerialJensenShannon(in *matrix.Matrix) *matrix.Matrix {
	n := in.Rows()
	cols := in.Cols()
	out := matrix.New(n, n)

	mix := make([]float64, cols)
	for i := 0; i < n; i++ {
		ri := in.Row(i)
		for j := 0; j < i; j++ {
			rj := in.Row(j)
			for k := 0; k < cols; k++ {
				mix[k] = 0.5 * (ri[k] + rj[k])
			}
			var d1, d2 float64
			for k := 0; k < cols; k++ {
				if ri[k] > 0 && mix[k] > 0 {
					d1 += ri[k] * math.Log(ri[k]/mix[k])
				}
				if rj[k] > 0 && mix[k] > 0 {
					d2 += rj[k] * math.Log(rj[k]/mix[k])
				}
			}
			out.Set(i, j, math.Sqrt(0.5*(d1+d2)))
		}
	}
	return out
}

// AssertMatrixInDelta asserts got matches want element-wise within delta.
func AssertMatrixInDelta(tb testing.TB, want, got *matrix.Matrix, delta float64) {
	tb.Helper()
	require.Equal(tb, want.Rows(), got.Rows(), "row count mismatch")
	require.Equal(tb, want.Cols(), got.Cols(), "column count mismatch")

	for i := 0; i < want.Rows(); i++ {
		for j := 0; j < want.Cols(); j++ {
			require.InDeltaf(tb, want.At(i, j), got.At(i, j), delta,
				"cell (%d, %d)", i, j)
		}
	}
}

// AssertStrictLowerTriangular asserts every cell on or above the diagonal
// is exactly zero.
func AssertStrictLowerTriangular(tb testing.TB, m *matrix.Matrix) {
	tb.Helper()
	for i := 0; i < m.Rows(); i++ {
		for j := i; j < m.Cols(); j++ {
			require.Zerof(tb, m.At(i, j), "cell (%d, %d) above or on diagonal", i, j)
		}
	}
}
