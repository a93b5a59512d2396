package parallel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paveg/divmat/internal/partition"
)

// idlePause bounds busy-waiting when a worker finds all queues empty.
const idlePause = time.Millisecond

// stealingScheduler keeps a resident pool of workers, each with its own
// queue. Chunks are seeded round-robin; a worker drains its own queue LIFO
// and steals FIFO from siblings when it runs dry, which rebalances the
// triangular cost skew without a shared lock on the hot path.
type stealingScheduler struct {
	workers int
	queues  []*stealQueue
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	metrics PoolMetrics
}

// PoolMetrics tracks scheduler activity counters.
type PoolMetrics struct {
	TasksProcessed atomic.Int64
	Steals         atomic.Int64
}

type chunkTask struct {
	index  int
	chunk  partition.Range
	worker Worker
	result chan<- chunkResult
}

type chunkResult struct {
	index int
	err   error
}

func newStealingScheduler(workers int, log *slog.Logger) *stealingScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &stealingScheduler{
		workers: workers,
		queues:  make([]*stealQueue, workers),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range s.queues {
		s.queues[i] = newStealQueue()
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	return s
}

// Run implements Scheduler.
func (s *stealingScheduler) Run(total, grain int, w Worker) error {
	chunks, err := partition.Partition(total, grain)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		// Pool threads are gone; keep the call available by degrading to
		// sequential execution.
		s.log.Warn("scheduler closed, running sequentially", "chunks", len(chunks))
		return Sequential{}.Run(total, grain, w)
	}

	s.log.Debug("dispatching chunks", "backend", BackendStealing.String(), "chunks", len(chunks), "workers", s.workers)

	// Each Run carries its own result channel, so concurrent Runs on the
	// same pool do not interleave results.
	results := make(chan chunkResult, len(chunks))
	for i, c := range chunks {
		s.queues[i%len(s.queues)].pushLocal(chunkTask{
			index:  i,
			chunk:  c,
			worker: w,
			result: results,
		})
	}

	// Join barrier: every chunk reports exactly once, success or failure.
	chunkErrs := make([]error, len(chunks))
	for range chunks {
		res := <-results
		chunkErrs[res.index] = res.err
	}

	return firstFailure(chunkErrs)
}

// Close implements Scheduler. It stops all workers and waits for them to
// exit. Tasks already queued by an in-flight Run are abandoned, so Close
// must not race a Run.
func (s *stealingScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	for _, q := range s.queues {
		q.close()
	}
}

// Steals returns the number of successful steals since construction.
func (s *stealingScheduler) Steals() int64 {
	return s.metrics.Steals.Load()
}

// TasksProcessed returns the number of chunks executed since construction.
func (s *stealingScheduler) TasksProcessed() int64 {
	return s.metrics.TasksProcessed.Load()
}

func (s *stealingScheduler) worker(id int) {
	defer s.wg.Done()

	own := s.queues[id]
	for {
		if task, ok := own.popLocal(); ok {
			s.execute(task)
			continue
		}
		if task, ok := s.steal(id); ok {
			s.metrics.Steals.Add(1)
			s.execute(task)
			continue
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(idlePause):
		}
	}
}

func (s *stealingScheduler) execute(task chunkTask) {
	err := safeProcess(task.worker, task.chunk)
	s.metrics.TasksProcessed.Add(1)
	task.result <- chunkResult{index: task.index, err: err}
}

func (s *stealingScheduler) steal(id int) (chunkTask, bool) {
	for i, q := range s.queues {
		if i == id {
			continue
		}
		if task, ok := q.steal(); ok {
			return task, true
		}
	}
	return chunkTask{}, false
}

// stealQueue is a mutex-guarded deque: LIFO for the owning worker (cache
// locality), FIFO for thieves (reduced contention with the owner).
type stealQueue struct {
	mu     sync.Mutex
	tasks  []chunkTask
	closed bool
}

func newStealQueue() *stealQueue {
	return &stealQueue{}
}

func (q *stealQueue) pushLocal(task chunkTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.tasks = append(q.tasks, task)
}

func (q *stealQueue) popLocal() (chunkTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.tasks) == 0 {
		return chunkTask{}, false
	}
	task := q.tasks[len(q.tasks)-1]
	q.tasks = q.tasks[:len(q.tasks)-1]
	return task, true
}

func (q *stealQueue) steal() (chunkTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.tasks) == 0 {
		return chunkTask{}, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

func (q *stealQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
