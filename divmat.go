// Package divmat computes pairwise Jensen-Shannon distance matrices in
// parallel. This package is the sole public API for the engine.
//
// The engine partitions the row range of an n x p input matrix into chunks,
// dispatches each chunk onto a worker pool, and fills the strict lower
// triangle of an n x n output matrix; the diagonal and upper triangle stay
// zero. The call blocks until every chunk has finished (fork-join), so the
// returned matrix is fully visible to the caller.
package divmat

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/paveg/divmat/internal/config"
	"github.com/paveg/divmat/internal/errors"
	"github.com/paveg/divmat/internal/kernel"
	"github.com/paveg/divmat/internal/matrix"
	"github.com/paveg/divmat/internal/parallel"
)

// Matrix is the public type for a dense row-major float64 matrix.
// It wraps the internal matrix.Matrix to hide implementation details.
type Matrix struct {
	m *matrix.Matrix
}

// NewMatrix creates a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{m: matrix.New(rows, cols)}
}

// NewMatrixFromRows copies row slices into a new matrix. Every row must have
// the same length.
func NewMatrixFromRows(rows [][]float64) (*Matrix, error) {
	m, err := matrix.FromRows(rows)
	if err != nil {
		return nil, err
	}
	return &Matrix{m: m}, nil
}

// NewMatrixFromSlice wraps an existing row-major buffer without copying. The
// caller keeps ownership of data.
func NewMatrixFromSlice(rows, cols int, data []float64) (*Matrix, error) {
	m, err := matrix.FromSlice(rows, cols, data)
	if err != nil {
		return nil, err
	}
	return &Matrix{m: m}, nil
}

// MatrixFromRecord builds a matrix from an arrow record whose columns are
// all float64. The record is not retained.
func MatrixFromRecord(rec arrow.Record) (*Matrix, error) {
	m, err := matrix.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &Matrix{m: m}, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.m.Rows() }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.m.Cols() }

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float64 { return m.m.At(i, j) }

// Set stores v at (i, j).
func (m *Matrix) Set(i, j int, v float64) { m.m.Set(i, j, v) }

// Row returns row i as a sub-slice of the underlying buffer.
func (m *Matrix) Row(i int) []float64 { return m.m.Row(i) }

// Data returns the underlying row-major buffer.
func (m *Matrix) Data() []float64 { return m.m.Data() }

// Fingerprint returns an xxhash64 digest of the matrix contents.
func (m *Matrix) Fingerprint() uint64 { return m.m.Fingerprint() }

// ToRecord exports the matrix as an arrow record built with mem. The caller
// releases the record.
func (m *Matrix) ToRecord(mem memory.Allocator) arrow.Record { return m.m.ToRecord(mem) }

// ComputeOption configures a single JensenShannonMatrix call.
type ComputeOption func(*computeOptions)

type computeOptions struct {
	grain      int
	workers    int
	backend    parallel.Backend
	backendSet bool
}

// WithGrain overrides the partition grain (rows per chunk) for one call.
func WithGrain(grain int) ComputeOption {
	return func(o *computeOptions) {
		o.grain = grain
	}
}

// WithWorkers runs the call on a dedicated pool of n workers instead of the
// process-wide pool.
func WithWorkers(n int) ComputeOption {
	return func(o *computeOptions) {
		o.workers = n
	}
}

// WithWorkStealing selects the scheduler backend for a dedicated pool:
// work-stealing when enabled, plain launch-and-join otherwise. Implies a
// dedicated pool for this call.
func WithWorkStealing(enabled bool) ComputeOption {
	return func(o *computeOptions) {
		o.backendSet = true
		if enabled {
			o.backend = parallel.BackendStealing
		} else {
			o.backend = parallel.BackendChunked
		}
	}
}

// JensenShannonMatrix computes the n x n strict-lower-triangular matrix of
// pairwise Jensen-Shannon distances between the rows of input.
//
// Rows are expected non-negative and ideally normalized to sum 1; the engine
// does not validate this and produces a numeric (possibly NaN) result rather
// than failing if violated. The call blocks until every chunk has finished.
// If any chunk fails, the first failure in submission order is returned and
// the output content for unfinished row ranges is unspecified.
func JensenShannonMatrix(input *Matrix, opts ...ComputeOption) (*Matrix, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("Compute", "input matrix is nil")
	}

	options := computeOptions{
		grain: config.GetGlobalConfig().Grain,
	}
	for _, opt := range opts {
		opt(&options)
	}

	n := input.Rows()
	out := matrix.New(n, n)
	worker := kernel.NewDistance(input.m.View(), out.RowWriter())

	scheduler, cleanup, err := schedulerFor(options)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := scheduler.Run(n, options.grain, worker); err != nil {
		return nil, err
	}

	return &Matrix{m: out}, nil
}

// schedulerFor returns the process-wide pool, or a dedicated one when the
// call overrides pool sizing or backend.
func schedulerFor(options computeOptions) (parallel.Scheduler, func(), error) {
	if options.workers == 0 && !options.backendSet {
		return parallel.Default(), func() {}, nil
	}

	backend := options.backend
	if !options.backendSet && config.GetGlobalConfig().EnableWorkStealing {
		backend = parallel.BackendStealing
	}
	scheduler, err := parallel.New(parallel.Options{
		Workers: options.workers,
		Backend: backend,
	})
	if err != nil {
		return nil, nil, err
	}
	return scheduler, scheduler.Close, nil
}

// Shutdown releases the process-wide worker pool. It is safe only when no
// computation is in flight; the next call lazily rebuilds the pool.
func Shutdown() {
	parallel.Shutdown()
}

// Config mirrors the engine configuration for external callers.
type Config struct {
	WorkerPoolSize     int  // worker goroutines, 0 = number of CPUs
	Grain              int  // rows per chunk, 0 = default (1)
	EnableWorkStealing bool // scheduler backend selection
	VerboseLogging     bool // scheduler debug logging
}

// SetConfig replaces the global engine configuration. It takes effect for
// pools constructed afterwards; call Shutdown first to rebuild the
// process-wide pool.
func SetConfig(c Config) error {
	internal := config.Config{
		WorkerPoolSize:     c.WorkerPoolSize,
		Grain:              c.Grain,
		EnableWorkStealing: c.EnableWorkStealing,
		VerboseLogging:     c.VerboseLogging,
	}
	if err := internal.Validate(); err != nil {
		return err
	}
	config.SetGlobalConfig(internal.WithDefaults())
	return nil
}

// GetConfig returns the current global engine configuration.
func GetConfig() Config {
	internal := config.GetGlobalConfig()
	return Config{
		WorkerPoolSize:     internal.WorkerPoolSize,
		Grain:              internal.Grain,
		EnableWorkStealing: internal.EnableWorkStealing,
		VerboseLogging:     internal.VerboseLogging,
	}
}

// LoadConfigFromFile loads the engine configuration from a JSON or YAML file
// and installs it globally.
func LoadConfigFromFile(path string) (Config, error) {
	internal, err := config.LoadFromFile(path)
	if err != nil {
		return Config{}, err
	}
	config.SetGlobalConfig(internal)
	return GetConfig(), nil
}
