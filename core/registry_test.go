package core

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func acceptedHandle(t *testing.T, r *Registry) *Handle {
	t.Helper()
	h := noopHandle()
	require.NoError(t, r.Accept(h))
	return h
}

func finish(r *Registry, h *Handle, err error) {
	h.MarkRunning(0)
	h.MarkFinished(err)
	r.Finish(h)
}

func TestRegistry_Accept(t *testing.T) {
	r := NewRegistry()

	t.Run("nil handle", func(t *testing.T) {
		assert.ErrorIs(t, r.Accept(nil), ErrInvalidArgument)
	})

	t.Run("nil task", func(t *testing.T) {
		assert.ErrorIs(t, r.Accept(NewHandle(nil)), ErrInvalidArgument)
	})

	t.Run("twice", func(t *testing.T) {
		h := acceptedHandle(t, r)
		assert.ErrorIs(t, r.Accept(h), ErrInvalidArgument)
		assert.ErrorIs(t, NewRegistry().Accept(h), ErrInvalidArgument, "handle already owned by another registry")
		assert.False(t, h.SubmittedAt().IsZero())
	})

	t.Run("release allows a new owner", func(t *testing.T) {
		h := acceptedHandle(t, r)
		r.Release(h)
		assert.True(t, h.SubmittedAt().IsZero())
		assert.NoError(t, NewRegistry().Accept(h))
	})
}

func TestRegistry_WaitForTasks_InvalidArguments(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	done := acceptedHandle(t, r)
	finish(r, done, nil)
	require.Equal(t, 1, r.FinishedCount())

	cases := map[string]TaskSet{
		"nil set":        nil,
		"empty set":      NewTaskSet(),
		"nil member":     {done: {}, nil: {}},
		"never accepted": NewTaskSet(done, noopHandle()),
		"foreign owner":  NewTaskSet(done, acceptedHandle(t, NewRegistry())),
	}
	for name, pending := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := r.WaitForTasks(ctx, pending)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Nil(t, got)
		})
	}

	// No side effects: the finished handle is still uncollected.
	assert.Equal(t, 1, r.FinishedCount())
}

func TestRegistry_WaitForTasks_ReturnsFinishedIntersection(t *testing.T) {
	// Arrange
	r := NewRegistry()
	a, b, c := acceptedHandle(t, r), acceptedHandle(t, r), acceptedHandle(t, r)
	finish(r, a, nil)
	finish(r, c, errors.New("boom"))
	pending := NewTaskSet(a, b, c)

	// Act
	finished, err := r.WaitForTasks(context.Background(), pending)

	// Assert
	require.NoError(t, err)
	assert.ElementsMatch(t, []*Handle{a, c}, finished.Handles())
	assert.Equal(t, 3, pending.Len(), "caller's set must not be modified")
	assert.Equal(t, 0, r.FinishedCount())
	assert.EqualError(t, c.Err(), "boom")

	// Returned handles stay finished and are reported again.
	again, err := r.WaitForTasks(context.Background(), NewTaskSet(a))
	require.NoError(t, err)
	assert.True(t, again.Has(a))
	assert.Equal(t, 0, r.FinishedCount(), "a handle is collected only once")
}

func TestRegistry_DoesNotRetainFinishedHandles(t *testing.T) {
	// Arrange
	r := NewRegistry()
	var finalized atomic.Int32
	for range 50 {
		h := acceptedHandle(t, r)
		runtime.SetFinalizer(h, func(*Handle) { finalized.Add(1) })
		finish(r, h, nil)
	}
	require.Equal(t, 50, r.FinishedCount())

	// Act
	for range 5 {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	// Assert
	assert.Equal(t, int32(50), finalized.Load(), "uncollected handles must not be pinned by the registry")
	assert.Equal(t, 50, r.FinishedCount())
}

func TestRegistry_WaitForTasks_BlocksUntilFinish(t *testing.T) {
	r := NewRegistry()
	h := acceptedHandle(t, r)

	var returned atomic.Bool
	result := make(chan TaskSet, 1)
	go func() {
		finished, err := r.WaitForTasks(context.Background(), NewTaskSet(h))
		assert.NoError(t, err)
		returned.Store(true)
		result <- finished
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, returned.Load(), "WaitForTasks returned before any task finished")

	finish(r, h, nil)

	select {
	case finished := <-result:
		assert.True(t, finished.Has(h))
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForTasks did not wake after Finish")
	}
}

func TestRegistry_WaitForTasks_ContextDeadline(t *testing.T) {
	r := NewRegistry()
	h := acceptedHandle(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	finished, err := r.WaitForTasks(ctx, NewTaskSet(h))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, finished)
	assert.False(t, h.Finished())
}

// Many waiters on disjoint pending sets all wake and every handle is
// collected exactly once.
func TestRegistry_ConcurrentWaiters(t *testing.T) {
	const waiters, perWaiter = 8, 25

	r := NewRegistry()
	sets := make([]TaskSet, waiters)
	var all []*Handle
	for i := range sets {
		sets[i] = NewTaskSet()
		for range perWaiter {
			h := acceptedHandle(t, r)
			sets[i].Add(h)
			all = append(all, h)
		}
	}

	var collected atomic.Int64
	var g errgroup.Group
	for i := range sets {
		pending := sets[i]
		g.Go(func() error {
			for pending.Len() > 0 {
				finished, err := r.WaitForTasks(context.Background(), pending)
				if err != nil {
					return err
				}
				collected.Add(int64(finished.Len()))
				pending = pending.Difference(finished)
			}
			return nil
		})
	}

	var finishers errgroup.Group
	for i := range 4 {
		finishers.Go(func() error {
			for j := i; j < len(all); j += 4 {
				finish(r, all[j], nil)
			}
			return nil
		})
	}

	require.NoError(t, finishers.Wait())
	require.NoError(t, g.Wait())
	assert.EqualValues(t, waiters*perWaiter, collected.Load())
	assert.Equal(t, 0, r.FinishedCount())
}
