package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TaskScheduler is the work source shared by a pool's workers: one FIFO
// queue, a wake-up signal and the pool's task counters.
type TaskScheduler struct {
	poolID      string
	queue       TaskQueue
	signal      chan struct{}
	draining    chan struct{} // closed once shutdown starts
	workerCount int

	// mu orders PostInternal against Shutdown so nothing is queued after
	// the workers were told to drain.
	mu           sync.RWMutex
	shuttingDown bool

	metricQueued atomic.Int32 // Waiting in queue
	metricActive atomic.Int32 // Executing in Worker

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64

	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
}

// NewFIFOTaskScheduler creates the scheduler for a pool of workerCount
// workers. A nil config uses DefaultPoolConfig().
func NewFIFOTaskScheduler(poolID string, workerCount int, config *PoolConfig) *TaskScheduler {
	config = config.WithDefaults()
	if workerCount < 1 {
		workerCount = 1
	}

	return &TaskScheduler{
		poolID:              poolID,
		queue:               NewFIFOTaskQueue(),
		signal:              make(chan struct{}, workerCount*2),
		draining:            make(chan struct{}),
		workerCount:         workerCount,
		metrics:             config.Metrics,
		rejectedTaskHandler: config.RejectedTaskHandler,
	}
}

// PostInternal queues h and wakes one idle worker. It never blocks beyond
// the queue lock. After Shutdown it returns an error wrapping ErrNotRunning.
func (s *TaskScheduler) PostInternal(h *Handle) error {
	s.mu.RLock()
	if s.shuttingDown {
		s.mu.RUnlock()
		s.rejected.Add(1)
		s.rejectedTaskHandler.HandleRejectedTask(s.poolID, "shutting down")
		s.metrics.RecordTaskRejected(s.poolID, "shutting down")
		return fmt.Errorf("%w: %s rejected by %s", ErrNotRunning, h.id, s.poolID)
	}
	s.queue.Push(h)
	s.metricQueued.Add(1)
	s.submitted.Add(1)
	s.mu.RUnlock()

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full; idle workers will find the handle anyway.
	}

	s.metrics.RecordQueueDepth(s.poolID, s.QueuedTaskCount())
	return nil
}

// GetWork (Called by Worker) blocks until a handle is available. It returns
// false once shutdown has started and the queue is empty.
func (s *TaskScheduler) GetWork() (*Handle, bool) {
	for {
		if h, ok := s.queue.Pop(); ok {
			s.metricQueued.Add(-1) // Metric-- (Left Queue)
			return h, true
		}

		select {
		case <-s.signal:
		case <-s.draining:
			if s.queue.IsEmpty() {
				return nil, false
			}
		}
	}
}

// Shutdown stops accepting new handles. Queued handles are still handed out
// by GetWork until the queue is empty. Safe to call more than once.
func (s *TaskScheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	close(s.draining)
}

// Metrics
func (s *TaskScheduler) WorkerCount() int     { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int { return int(s.metricQueued.Load()) }
func (s *TaskScheduler) ActiveTaskCount() int { return int(s.metricActive.Load()) }
func (s *TaskScheduler) SubmittedCount() uint64 {
	return s.submitted.Load()
}
func (s *TaskScheduler) CompletedCount() uint64 { return s.completed.Load() }
func (s *TaskScheduler) FailedCount() uint64    { return s.failed.Load() }
func (s *TaskScheduler) RejectedCount() uint64  { return s.rejected.Load() }

func (s *TaskScheduler) OnTaskStart() {
	s.metricActive.Add(1)
}

// OnTaskEnd updates counters once a handle finished executing.
func (s *TaskScheduler) OnTaskEnd(failed bool) {
	s.metricActive.Add(-1)
	s.completed.Add(1)
	if failed {
		s.failed.Add(1)
	}
}
