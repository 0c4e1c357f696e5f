package threadcache

import "github.com/xylose/go-threadcache/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the threadcache package for most use cases.

// Task is the unit of work executed by a worker
type Task = core.Task

// TaskFunc adapts a function to Task
type TaskFunc = core.TaskFunc

// Handle is the identity of one submitted task
type Handle = core.Handle

// TaskSet is a set of handles, used as the pending set of WaitForTasks
type TaskSet = core.TaskSet

// TaskID identifies one submission
type TaskID = core.TaskID

// TaskExecutionError records a failed or panicked task
type TaskExecutionError = core.TaskExecutionError

// PoolConfig holds the pluggable collaborators of a WorkerPool
type PoolConfig = core.PoolConfig

// PoolStats is a point-in-time snapshot of a WorkerPool
type PoolStats = core.PoolStats

// TaskExecutionRecord is one entry of a pool's execution history
type TaskExecutionRecord = core.TaskExecutionRecord

// Sentinel errors, matched with errors.Is
var (
	ErrConfiguration   = core.ErrConfiguration
	ErrNotRunning      = core.ErrNotRunning
	ErrInvalidArgument = core.ErrInvalidArgument
)

var (
	NewHandle      = core.NewHandle
	NewNamedHandle = core.NewNamedHandle
	NewTaskSet     = core.NewTaskSet
)

// AsTaskExecutionError is a shorthand for errors.As with *TaskExecutionError
var AsTaskExecutionError = core.AsTaskExecutionError
