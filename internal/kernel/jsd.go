// Package kernel implements the Jensen-Shannon pairwise distance worker.
//
// The kernel is pure computation: it holds a read-only view of the input
// rows and a row-disjoint writer into the output matrix, and shares no other
// state between pairs, so it needs no synchronization of its own.
package kernel

import (
	"math"
	"sync"

	"github.com/paveg/divmat/internal/errors"
	"github.com/paveg/divmat/internal/matrix"
	"github.com/paveg/divmat/internal/partition"
)

// scratchPool recycles per-chunk averaging buffers across kernel
// invocations.
var scratchPool = sync.Pool{
	New: func() interface{} {
		s := make([]float64, 0)
		return &s
	},
}

// JensenShannon returns the Jensen-Shannon distance between two equal-length
// probability vectors: sqrt(0.5*(KL(p||m) + KL(q||m))) with m = (p+q)/2.
//
// KL terms follow the 0*ln(0)=0 convention: a summand is skipped whenever
// the numerator or the mixture entry is not positive. A positive value
// paired against a zero mixture entry is likewise skipped rather than
// contributing an infinite penalty; inputs with non-negative entries never
// produce one anyway, since m[k] = 0 forces p[k] = q[k] = 0.
//
// Both vectors must have the same length. Negative or non-finite inputs are
// the caller's responsibility; the result is then numeric garbage (possibly
// NaN), never an error.
func JensenShannon(p, q []float64) float64 {
	scratch := scratchPool.Get().(*[]float64)
	m := resize(*scratch, len(p))
	mixture(m, p, q)
	d := distanceWithMixture(p, q, m)
	*scratch = m
	scratchPool.Put(scratch)
	return d
}

// Distance is the worker computing one chunk of the strict lower triangle.
type Distance struct {
	in  matrix.View
	out matrix.RowWriter
}

// NewDistance binds a kernel to its input view and output writer. The output
// must be n x n for an n-row input; the scheduler's join barrier guarantees
// both outlive every chunk.
func NewDistance(in matrix.View, out matrix.RowWriter) *Distance {
	return &Distance{in: in, out: out}
}

// Process computes output[i][j] for every i in [r.Begin, r.End) and j < i.
// Cells on and above the diagonal are never touched.
func (d *Distance) Process(r partition.Range) error {
	if r.Begin < 0 || r.End > d.in.Rows() {
		return errors.NewInvalidInputError("Compute",
			"chunk exceeds input rows")
	}
	if d.out.Rows() < d.in.Rows() || d.out.Cols() < d.in.Rows() {
		return errors.NewInvalidInputError("Compute",
			"output matrix smaller than input row count")
	}

	cols := d.in.Cols()
	scratch := scratchPool.Get().(*[]float64)
	m := resize(*scratch, cols)
	defer func() {
		*scratch = m
		scratchPool.Put(scratch)
	}()

	for i := r.Begin; i < r.End; i++ {
		ri := d.in.Row(i)
		for j := 0; j < i; j++ {
			rj := d.in.Row(j)
			mixture(m, ri, rj)
			d.out.Set(i, j, distanceWithMixture(ri, rj, m))
		}
	}

	return nil
}

// mixture fills dst with the element-wise average of p and q.
func mixture(dst, p, q []float64) {
	for k := range dst {
		dst[k] = 0.5 * (p[k] + q[k])
	}
}

// distanceWithMixture computes sqrt(0.5*(KL(p||m) + KL(q||m))) for a
// precomputed mixture m.
func distanceWithMixture(p, q, m []float64) float64 {
	return math.Sqrt(0.5 * (klDivergence(p, m) + klDivergence(q, m)))
}

// klDivergence sums p[k]*ln(p[k]/m[k]) over indices where both operands are
// positive.
func klDivergence(p, m []float64) float64 {
	var sum float64
	for k, pk := range p {
		if pk > 0 && m[k] > 0 {
			sum += pk * math.Log(pk/m[k])
		}
	}
	return sum
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
