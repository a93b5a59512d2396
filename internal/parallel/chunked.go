package parallel

import (
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/paveg/divmat/internal/partition"
)

// chunkedScheduler launches one goroutine per chunk, bounded by the worker
// count, and joins. Higher dispatch overhead than the stealing backend but
// no resident goroutines between calls.
type chunkedScheduler struct {
	workers int
	log     *slog.Logger
}

func newChunkedScheduler(workers int, log *slog.Logger) *chunkedScheduler {
	return &chunkedScheduler{
		workers: workers,
		log:     log,
	}
}

// Run implements Scheduler.
func (s *chunkedScheduler) Run(total, grain int, w Worker) error {
	chunks, err := partition.Partition(total, grain)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	s.log.Debug("dispatching chunks", "backend", BackendChunked.String(), "chunks", len(chunks), "workers", s.workers)

	// Errors are collected per chunk rather than through the group so that
	// a failure never cancels sibling chunks; every chunk must finish
	// before borrowed buffer views are released at the join.
	chunkErrs := make([]error, len(chunks))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, c := range chunks {
		g.Go(func() error {
			chunkErrs[i] = safeProcess(w, c)
			return nil
		})
	}
	_ = g.Wait()

	return firstFailure(chunkErrs)
}

// Close implements Scheduler. The chunked backend keeps no resident
// goroutines, so there is nothing to release.
func (s *chunkedScheduler) Close() {}
