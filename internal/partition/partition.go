// Package partition splits half-open index intervals into contiguous,
// non-overlapping chunks for parallel execution.
//
// Chunk size is controlled by a grain parameter. For workloads whose
// per-index cost grows with the index (such as lower-triangular pairwise
// computations) a small grain gives better load balance than splitting the
// interval statically by worker count.
package partition

import (
	"github.com/paveg/divmat/internal/errors"
)

// DefaultGrain is the chunk size used when callers pass grain 0.
const DefaultGrain = 1

// Range is a half-open index interval [Begin, End).
type Range struct {
	Begin int
	End   int
}

// Len returns the number of indices covered by the range.
func (r Range) Len() int {
	return r.End - r.Begin
}

// Valid reports whether the range is well formed (0 <= Begin <= End).
func (r Range) Valid() bool {
	return r.Begin >= 0 && r.Begin <= r.End
}

// Contains reports whether i falls inside the range.
func (r Range) Contains(i int) bool {
	return i >= r.Begin && i < r.End
}

// Overlaps reports whether the range shares any index with other.
func (r Range) Overlaps(other Range) bool {
	return r.Begin < other.End && other.Begin < r.End
}

// Partition splits [0, total) into ordered, contiguous chunks of at most
// max(grain, 1) indices each. Chunks never overlap and their lengths sum to
// total. A total of zero yields no chunks. Grain 0 selects DefaultGrain.
func Partition(total, grain int) ([]Range, error) {
	if total < 0 {
		return nil, errors.ErrInvalidRange
	}
	return Split(Range{Begin: 0, End: total}, grain)
}

// Split divides r into ordered, contiguous chunks of at most max(grain, 1)
// indices each, covering r exactly. Grain 0 selects DefaultGrain.
func Split(r Range, grain int) ([]Range, error) {
	if !r.Valid() {
		return nil, errors.ErrInvalidRange
	}
	if grain < 0 {
		return nil, errors.ErrNegativeGrain
	}
	if grain == 0 {
		grain = DefaultGrain
	}

	total := r.Len()
	if total == 0 {
		return nil, nil
	}

	chunks := make([]Range, 0, (total+grain-1)/grain)
	for begin := r.Begin; begin < r.End; begin += grain {
		end := begin + grain
		if end > r.End {
			end = r.End
		}
		chunks = append(chunks, Range{Begin: begin, End: end})
	}

	return chunks, nil
}
