// Package parallel provides the fork-join execution engine for row-range
// workloads.
//
// This package implements schedulers that partition an index range into
// chunks, dispatch each chunk to a worker goroutine, and block until every
// chunk has finished. It provides two interchangeable backends: a simple
// launch-and-join pool and a work-stealing pool with per-worker queues.
//
// Key features:
//   - Fork-join barrier: Run returns only after every chunk completed or failed
//   - Per-chunk failure capture; the first failure by submission order is
//     surfaced after the join, sibling chunks always run to completion
//   - Process-wide default pool, lazily constructed and explicitly shut down
//   - Sequential fallback when no pool can be constructed
//
// Workers own disjoint output rows by construction, so the schedulers take
// no locks around worker execution.
package parallel

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/paveg/divmat/internal/config"
	"github.com/paveg/divmat/internal/errors"
	"github.com/paveg/divmat/internal/partition"
)

// Worker processes one contiguous chunk of the index space.
type Worker interface {
	Process(r partition.Range) error
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(r partition.Range) error

// Process implements Worker.
func (f WorkerFunc) Process(r partition.Range) error { return f(r) }

// Scheduler executes a worker over the chunks of [0, total) and blocks until
// every chunk has finished. Implementations must produce identical final
// buffer contents for identical inputs; they differ only in dispatch
// strategy.
type Scheduler interface {
	// Run partitions [0, total) by grain, executes the worker once per
	// chunk, and returns after the join barrier. The first chunk failure in
	// submission order is returned; later failures are dropped.
	Run(total, grain int, w Worker) error

	// Close releases the scheduler's goroutines. Calling Close while a Run
	// is in flight is a caller error.
	Close()
}

// Backend selects a scheduler implementation.
type Backend int

const (
	// BackendChunked launches one goroutine per chunk, bounded by the
	// worker count, and joins.
	BackendChunked Backend = iota
	// BackendStealing keeps a resident pool of workers with per-worker
	// queues and work stealing.
	BackendStealing
)

func (b Backend) String() string {
	switch b {
	case BackendChunked:
		return "chunked"
	case BackendStealing:
		return "stealing"
	default:
		return fmt.Sprintf("Unknown(%d)", int(b))
	}
}

// Options configures scheduler construction.
type Options struct {
	Workers int     // 0 = runtime.NumCPU()
	Backend Backend // dispatch strategy
	Logger  *slog.Logger
}

// New creates a scheduler for the given options.
func New(opts Options) (Scheduler, error) {
	if opts.Workers < 0 {
		return nil, errors.ErrNegativeWorkers
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	switch opts.Backend {
	case BackendChunked:
		return newChunkedScheduler(opts.Workers, opts.Logger), nil
	case BackendStealing:
		return newStealingScheduler(opts.Workers, opts.Logger), nil
	default:
		return nil, errors.NewInvalidInputError("Pool", fmt.Sprintf("unknown backend %d", int(opts.Backend)))
	}
}

// Sequential executes every chunk in submission order on the calling
// goroutine. It is the fallback when no pool can be constructed and the
// reference behavior the concurrent backends must match.
type Sequential struct{}

// Run implements Scheduler.
func (Sequential) Run(total, grain int, w Worker) error {
	chunks, err := partition.Partition(total, grain)
	if err != nil {
		return err
	}

	var first error
	for i, c := range chunks {
		if err := safeProcess(w, c); err != nil && first == nil {
			first = errors.NewWorkerFailure("Run", i, err)
		}
	}
	return first
}

// Close implements Scheduler.
func (Sequential) Close() {}

// Process-wide default pool. Construction is deferred to first use and
// guarded against concurrent first-use races; Shutdown tears it down so the
// next Run rebuilds it from the current global config.
var (
	defaultMu   sync.Mutex
	defaultPool Scheduler
)

// Default returns the process-wide scheduler, constructing it from the
// global configuration on first use. If construction fails, execution falls
// back to the Sequential scheduler rather than failing the call.
func Default() Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool != nil {
		return defaultPool
	}

	cfg := config.GetGlobalConfig()
	opts := Options{
		Workers: cfg.WorkerPoolSize,
		Logger:  newLogger(cfg.VerboseLogging),
	}
	if cfg.EnableWorkStealing {
		opts.Backend = BackendStealing
	}

	pool, err := New(opts)
	if err != nil {
		opts.Logger.Warn("worker pool construction failed, running sequentially", "error", err)
		pool = Sequential{}
	}
	defaultPool = pool
	return defaultPool
}

// Run executes the worker on the process-wide scheduler.
func Run(total, grain int, w Worker) error {
	return Default().Run(total, grain, w)
}

// Shutdown releases the process-wide scheduler's goroutines. It is safe only
// when no Run is in flight. The next Run lazily rebuilds the pool.
func Shutdown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool != nil {
		defaultPool.Close()
		defaultPool = nil
	}
}

func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// safeProcess runs one chunk and converts a worker panic into an error so a
// single chunk cannot tear down the join barrier while sibling chunks still
// hold views into shared buffers.
func safeProcess(w Worker, r partition.Range) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("worker panic: %v", p)
		}
	}()
	return w.Process(r)
}

// firstFailure returns the first non-nil chunk error in submission order,
// wrapped with its chunk index.
func firstFailure(chunkErrs []error) error {
	for i, err := range chunkErrs {
		if err != nil {
			return errors.NewWorkerFailure("Run", i, err)
		}
	}
	return nil
}
