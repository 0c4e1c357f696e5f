package core

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync/atomic"
	"time"
)

// Task is the unit of work executed by a pool worker.
//
// Execute is invoked exactly once, by exactly one worker. Inputs and outputs
// live in the fields of the concrete task; a returned error (or a panic) is
// recorded on the task's Handle as a *TaskExecutionError.
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute calls f(ctx).
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// TaskID identifies one submission. IDs increase in submission order.
type TaskID uint64

func (id TaskID) String() string {
	return fmt.Sprintf("task-%d", uint64(id))
}

var lastTaskID atomic.Uint64

// GenerateTaskID returns a process-unique, monotonically increasing TaskID.
func GenerateTaskID() TaskID {
	return TaskID(lastTaskID.Add(1))
}

// =============================================================================
// Handle: the identity of a submitted task
// =============================================================================

type handleState int32

const (
	handleCreated handleState = iota
	handleQueued
	handleRunning
	handleFinished
)

func (s handleState) String() string {
	switch s {
	case handleCreated:
		return "created"
	case handleQueued:
		return "queued"
	case handleRunning:
		return "running"
	case handleFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Handle is the submitter-owned identity of a task. The pool only keeps a
// non-owning reference while the task is queued or running; once the handle
// is reported finished the task belongs to the submitter again.
//
// A Handle is submitted at most once. Resubmitting work means creating a new
// Handle for a fresh task.
type Handle struct {
	id    TaskID
	name  string
	task  Task
	state atomic.Int32

	// owner is set when the handle is accepted by a Registry.
	owner atomic.Pointer[Registry]
	// collected is set the first time WaitForTasks returns the handle.
	collected atomic.Bool

	// Written by the executing worker before done is closed.
	err        error
	startedAt  time.Time
	finishedAt time.Time
	workerID   int

	submittedAt time.Time
	done        chan struct{}
}

// NewHandle wraps task in a fresh, unsubmitted Handle.
func NewHandle(task Task) *Handle {
	return NewNamedHandle("", task)
}

// NewNamedHandle is NewHandle with a display name used in logs and history.
func NewNamedHandle(name string, task Task) *Handle {
	id := GenerateTaskID()
	return &Handle{
		id:       id,
		name:     resolveTaskName(task, name),
		task:     task,
		workerID: -1,
		done:     make(chan struct{}),
	}
}

// ID returns the submission id.
func (h *Handle) ID() TaskID { return h.id }

// Name returns the display name.
func (h *Handle) Name() string { return h.name }

// Task returns the wrapped task. Its fields must only be read after the
// handle was observed finished.
func (h *Handle) Task() Task { return h.task }

// Done is closed once the task has finished executing.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finished reports whether the task has finished executing.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the execution failure, or nil if the task succeeded or has not
// finished yet.
func (h *Handle) Err() error {
	if !h.Finished() {
		return nil
	}
	return h.err
}

// Duration returns how long Execute ran. Zero until finished.
func (h *Handle) Duration() time.Duration {
	if !h.Finished() {
		return 0
	}
	return h.finishedAt.Sub(h.startedAt)
}

// WorkerID returns the worker that executed the task, or -1 if it has not
// finished yet.
func (h *Handle) WorkerID() int {
	if !h.Finished() {
		return -1
	}
	return h.workerID
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s(%s, %s)", h.id, h.name, handleState(h.state.Load()))
}

// MarkRunning records the start of execution on workerID.
func (h *Handle) MarkRunning(workerID int) {
	h.workerID = workerID
	h.startedAt = time.Now()
	h.state.Store(int32(handleRunning))
}

// MarkFinished records the outcome of Execute. It is not visible to other
// goroutines until the handle is published through Registry.Finish.
func (h *Handle) MarkFinished(err error) {
	h.err = err
	h.finishedAt = time.Now()
}

// SubmittedAt returns when the handle was accepted by a pool.
func (h *Handle) SubmittedAt() time.Time {
	if h.state.Load() == int32(handleCreated) {
		return time.Time{}
	}
	return h.submittedAt
}

func resolveTaskName(task Task, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if task == nil {
		return "anonymous"
	}

	v := reflect.ValueOf(task)
	if v.Kind() != reflect.Func {
		return reflect.TypeOf(task).String()
	}

	pc := v.Pointer()
	if pc == 0 {
		return "anonymous"
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil || fn.Name() == "" {
		return "anonymous"
	}
	return fn.Name()
}
