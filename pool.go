package threadcache

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/xylose/go-threadcache/core"
	"github.com/xylose/go-threadcache/internal/config"
)

type poolState int

const (
	poolCreated poolState = iota
	poolRunning
	poolFailed // worker count could not be resolved; terminal until Shutdown
	poolStopped
)

// WorkerPool manages a fixed set of worker goroutines.
// Workers pull handles from one FIFO scheduler, execute them and publish
// them as finished through the pool's registry.
type WorkerPool struct {
	id         string
	maxThreads int
	config     *core.PoolConfig
	logger     core.Logger

	scheduler *core.TaskScheduler
	registry  *core.Registry
	history   *core.ExecutionHistory

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	stateMu sync.RWMutex
	state   poolState
	initErr error // set when the pool entered poolFailed

	shutdownOnce sync.Once
	stopped      chan struct{} // closed once every worker has exited
}

// NewWorkerPool creates an unstarted pool. maxThreads == 0 resolves the
// worker count from NUM_PTHREADS or GOMAXPROCS when the pool starts.
func NewWorkerPool(id string, maxThreads int) *WorkerPool {
	return NewWorkerPoolWithConfig(id, maxThreads, nil)
}

// NewWorkerPoolWithConfig is NewWorkerPool with custom handlers.
// A nil config uses core.DefaultPoolConfig().
func NewWorkerPoolWithConfig(id string, maxThreads int, cfg *core.PoolConfig) *WorkerPool {
	if id == "" {
		id = "pool-" + uuid.NewString()[:8]
	}
	cfg = cfg.WithDefaults()
	return &WorkerPool{
		id:         id,
		maxThreads: maxThreads,
		config:     cfg,
		logger:     cfg.Logger,
		registry:   core.NewRegistry(),
		history:    core.NewExecutionHistory(cfg.HistoryCapacity),
		stopped:    make(chan struct{}),
	}
}

// SetMaxThreads sets the worker count. It must be called before the pool
// starts; afterwards it returns an error wrapping core.ErrConfiguration.
func (p *WorkerPool) SetMaxThreads(n int) error {
	if err := config.ValidateMaxThreads(n); err != nil {
		return err
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state != poolCreated {
		return core.ConfigurationError("pool %s is no longer configurable", p.id)
	}
	p.maxThreads = n
	return nil
}

// Start starts all worker goroutines. Calling Start on a running pool is a
// no-op; calling it after Shutdown returns core.ErrNotRunning.
//
// If the worker count cannot be resolved the error is returned and logged
// once; the pool then refuses every submission with an error wrapping both
// core.ErrNotRunning and the original cause.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	switch p.state {
	case poolRunning:
		return nil // Already running
	case poolFailed:
		return p.failedErr()
	case poolStopped:
		return fmt.Errorf("%w: pool %s was shut down", core.ErrNotRunning, p.id)
	}

	workers, err := config.ResolveMaxThreads(p.maxThreads)
	if err != nil {
		p.state = poolFailed
		p.initErr = err
		p.logger.Error("worker pool failed to start", core.F("pool", p.id), core.F("error", err))
		return err
	}

	p.maxThreads = workers
	p.scheduler = core.NewFIFOTaskScheduler(p.id, workers, p.config)
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state = poolRunning

	for i := range workers {
		p.wg.Add(1)
		go p.workerLoop(i)
	}

	p.logger.Debug("worker pool started", core.F("pool", p.id), core.F("workers", workers))
	return nil
}

// Submit wraps task in a new Handle and queues it. The pool is started on
// first use.
func (p *WorkerPool) Submit(task core.Task) (*core.Handle, error) {
	return p.SubmitNamed("", task)
}

// SubmitNamed is Submit with a display name used in logs and history.
func (p *WorkerPool) SubmitNamed(name string, task core.Task) (*core.Handle, error) {
	if task == nil {
		return nil, core.InvalidArgumentError("nil task")
	}
	h := core.NewNamedHandle(name, task)
	if err := p.SubmitHandle(h); err != nil {
		return nil, err
	}
	return h, nil
}

// SubmitHandle queues a caller-created handle. Each handle is accepted once;
// resubmitting it returns an error wrapping core.ErrInvalidArgument.
// Submitting never blocks beyond the queue lock.
func (p *WorkerPool) SubmitHandle(h *core.Handle) error {
	scheduler, err := p.ensureStarted()
	if err != nil {
		return err
	}

	if err := p.registry.Accept(h); err != nil {
		return err
	}
	if err := scheduler.PostInternal(h); err != nil {
		p.registry.Release(h)
		return err
	}
	return nil
}

// failedErr must be called with stateMu held.
func (p *WorkerPool) failedErr() error {
	return fmt.Errorf("%w: pool %s failed to start: %w", core.ErrNotRunning, p.id, p.initErr)
}

// ensureStarted returns the running scheduler, starting the pool if needed.
func (p *WorkerPool) ensureStarted() (*core.TaskScheduler, error) {
	p.stateMu.RLock()
	state, scheduler := p.state, p.scheduler
	p.stateMu.RUnlock()

	switch state {
	case poolRunning:
		return scheduler, nil
	case poolFailed:
		p.config.RejectedTaskHandler.HandleRejectedTask(p.id, "failed to start")
		p.config.Metrics.RecordTaskRejected(p.id, "failed to start")
		p.stateMu.RLock()
		defer p.stateMu.RUnlock()
		return nil, p.failedErr()
	case poolStopped:
		if scheduler != nil {
			// The scheduler rejects and accounts for the submission.
			return scheduler, nil
		}
		p.config.RejectedTaskHandler.HandleRejectedTask(p.id, "shut down before start")
		p.config.Metrics.RecordTaskRejected(p.id, "shut down before start")
		return nil, fmt.Errorf("%w: pool %s was shut down", core.ErrNotRunning, p.id)
	}

	if err := p.Start(context.Background()); err != nil {
		return nil, err
	}
	return p.ensureStarted()
}

// WaitForTasks blocks until at least one handle of pending has finished and
// returns every handle of pending that has. See core.Registry.WaitForTasks.
func (p *WorkerPool) WaitForTasks(ctx context.Context, pending core.TaskSet) (core.TaskSet, error) {
	return p.registry.WaitForTasks(ctx, pending)
}

// Wait blocks until h has finished or ctx is done.
func (p *WorkerPool) Wait(ctx context.Context, h *core.Handle) error {
	_, err := p.WaitForTasks(ctx, core.NewTaskSet(h))
	return err
}

// workerLoop is the main loop for each worker
func (p *WorkerPool) workerLoop(id int) {
	defer p.wg.Done()

	for {
		// Pull tasks from the scheduler until it drains after shutdown.
		h, ok := p.scheduler.GetWork()
		if !ok {
			return
		}

		p.scheduler.OnTaskStart()
		h.MarkRunning(id)

		err := p.execute(id, h)
		h.MarkFinished(err)

		record := core.NewTaskExecutionRecord(p.id, h)
		p.history.Add(record)
		p.config.Metrics.RecordTaskDuration(p.id, record.Duration)
		if err != nil && !record.Panicked {
			p.config.Metrics.RecordTaskFailed(p.id, err)
		}
		p.scheduler.OnTaskEnd(err != nil)

		// After Finish the task belongs to its submitter again.
		p.registry.Finish(h)
	}
}

// execute runs the task and converts a returned error or a panic into a
// *core.TaskExecutionError.
func (p *WorkerPool) execute(workerID int, h *core.Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = &core.TaskExecutionError{
				TaskID: h.ID(),
				Name:   h.Name(),
				Panic:  r,
				Stack:  stack,
			}
			p.config.Metrics.RecordTaskPanic(p.id, r)
			p.config.PanicHandler.HandlePanic(p.ctx, p.id, workerID, r, stack)
		}
	}()

	if taskErr := h.Task().Execute(p.ctx); taskErr != nil {
		return &core.TaskExecutionError{
			TaskID: h.ID(),
			Name:   h.Name(),
			Err:    taskErr,
		}
	}
	return nil
}

// Shutdown stops accepting tasks, lets workers drain the queue and waits
// for them to exit. It is idempotent; later submissions return
// core.ErrNotRunning.
func (p *WorkerPool) Shutdown() {
	_ = p.ShutdownContext(context.Background())
}

// ShutdownContext is Shutdown bounded by ctx. If ctx ends before the queue
// is drained it returns ctx.Err(); workers keep draining in the background.
func (p *WorkerPool) ShutdownContext(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.stateMu.Lock()
		prev := p.state
		p.state = poolStopped
		scheduler := p.scheduler
		if scheduler != nil {
			// Anyone observing the stopped state also sees a closed scheduler.
			scheduler.Shutdown()
		}
		p.stateMu.Unlock()

		if prev != poolRunning {
			close(p.stopped)
			return
		}

		go func() {
			p.wg.Wait()
			p.cancel()
			close(p.stopped)
		}()
		p.logger.Info("worker pool shutting down",
			core.F("pool", p.id),
			core.F("queued", scheduler.QueuedTaskCount()),
			core.F("active", scheduler.ActiveTaskCount()),
		)
	})

	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join waits for all worker goroutines to exit after Shutdown.
func (p *WorkerPool) Join() {
	<-p.stopped
}

// ID returns the ID of the pool
func (p *WorkerPool) ID() string {
	return p.id
}

// IsRunning reports whether the pool has started and not been shut down.
func (p *WorkerPool) IsRunning() bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state == poolRunning
}

// WorkerCount returns the number of workers, or the configured value if the
// pool has not started yet (0 meaning "resolve at start").
func (p *WorkerPool) WorkerCount() int {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if p.scheduler != nil {
		return p.scheduler.WorkerCount()
	}
	return p.maxThreads
}

func (p *WorkerPool) QueuedTaskCount() int {
	if s := p.currentScheduler(); s != nil {
		return s.QueuedTaskCount()
	}
	return 0
}

func (p *WorkerPool) ActiveTaskCount() int {
	if s := p.currentScheduler(); s != nil {
		return s.ActiveTaskCount()
	}
	return 0
}

// FinishedTaskCount returns the number of finished handles no waiter has
// collected yet.
func (p *WorkerPool) FinishedTaskCount() int {
	return p.registry.FinishedCount()
}

// RecentTasks returns up to limit execution records, newest first.
func (p *WorkerPool) RecentTasks(limit int) []core.TaskExecutionRecord {
	return p.history.Recent(limit)
}

// Stats returns a point-in-time snapshot of the pool.
func (p *WorkerPool) Stats() core.PoolStats {
	p.stateMu.RLock()
	stats := core.PoolStats{
		ID:      p.id,
		Workers: p.maxThreads,
		Running: p.state == poolRunning,
	}
	scheduler := p.scheduler
	p.stateMu.RUnlock()

	stats.Finished = p.registry.FinishedCount()
	if scheduler != nil {
		stats.Workers = scheduler.WorkerCount()
		stats.Queued = scheduler.QueuedTaskCount()
		stats.Active = scheduler.ActiveTaskCount()
		stats.Submitted = scheduler.SubmittedCount()
		stats.Completed = scheduler.CompletedCount()
		stats.Failed = scheduler.FailedCount()
		stats.Rejected = scheduler.RejectedCount()
	}
	if last, ok := p.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

func (p *WorkerPool) currentScheduler() *core.TaskScheduler {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.scheduler
}

// =============================================================================
// Global Worker Pool Helper (Singleton)
// =============================================================================

const globalPoolID = "global-pool"

var (
	globalPool *WorkerPool
	globalMu   sync.Mutex
)

// GlobalPool returns the process-wide pool, creating it on first use.
// It starts lazily on the first submission, sized by SetMaxThreads, the
// NUM_PTHREADS environment variable or GOMAXPROCS, in that order.
func GlobalPool() *WorkerPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		globalPool = NewWorkerPool(globalPoolID, 0)
	}
	return globalPool
}

// SetMaxThreads configures the worker count of the global pool. It fails
// with core.ErrConfiguration once the global pool has started.
func SetMaxThreads(n int) error {
	return GlobalPool().SetMaxThreads(n)
}

// ShutdownGlobalPool drains and stops the global pool. A later GlobalPool
// call creates a fresh, unstarted pool.
func ShutdownGlobalPool() {
	globalMu.Lock()
	pool := globalPool
	globalPool = nil
	globalMu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}
