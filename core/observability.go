package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID      TaskID
	Name        string
	PoolID      string
	WorkerID    int
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	Failed      bool
	Panicked    bool
}

// NewTaskExecutionRecord builds the record for a finished handle.
// It must only be called once h is finished.
func NewTaskExecutionRecord(poolID string, h *Handle) TaskExecutionRecord {
	record := TaskExecutionRecord{
		TaskID:      h.id,
		Name:        h.name,
		PoolID:      poolID,
		WorkerID:    h.workerID,
		SubmittedAt: h.submittedAt,
		StartedAt:   h.startedAt,
		FinishedAt:  h.finishedAt,
		Duration:    h.finishedAt.Sub(h.startedAt),
		Failed:      h.err != nil,
	}
	if te, ok := AsTaskExecutionError(h.err); ok {
		record.Panicked = te.IsPanic()
	}
	return record
}

// PoolStats represents runtime observability state for a worker pool.
type PoolStats struct {
	ID        string
	Workers   int
	Queued    int
	Active    int
	Finished  int // finished and not yet collected by a waiter
	Submitted uint64
	Completed uint64
	Failed    uint64
	Rejected  uint64
	Running   bool

	LastTaskName string
	LastTaskAt   time.Time
}
