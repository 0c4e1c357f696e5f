package core

import (
	"context"
	"errors"
	"testing"
)

func record(id TaskID) TaskExecutionRecord {
	return TaskExecutionRecord{TaskID: id}
}

// TestExecutionHistory_RecentOrder verifies ring order and limits
// Given: A history of capacity 3 with 5 records added
// When: Recent is called with and without a limit
// Then: Only the 3 newest are kept, newest first
func TestExecutionHistory_RecentOrder(t *testing.T) {
	// Arrange
	h := NewExecutionHistory(3)
	for id := range TaskID(5) {
		h.Add(record(id + 1))
	}

	// Act
	all := h.Recent(0)
	two := h.Recent(2)

	// Assert
	want := []TaskID{5, 4, 3}
	if len(all) != len(want) {
		t.Fatalf("len(Recent(0)) = %d, want %d", len(all), len(want))
	}
	for i := range want {
		if all[i].TaskID != want[i] {
			t.Errorf("Recent(0)[%d] = %d, want %d", i, all[i].TaskID, want[i])
		}
	}
	if len(two) != 2 || two[0].TaskID != 5 {
		t.Errorf("Recent(2) = %v, want ids [5 4]", two)
	}

	last, ok := h.Last()
	if !ok || last.TaskID != 5 {
		t.Errorf("Last() = %v, %v, want 5, true", last.TaskID, ok)
	}
}

// TestExecutionHistory_Empty verifies the empty and default-capacity cases
func TestExecutionHistory_Empty(t *testing.T) {
	h := NewExecutionHistory(0)

	if got := h.Recent(10); got != nil {
		t.Errorf("Recent() = %v, want nil", got)
	}
	if _, ok := h.Last(); ok {
		t.Error("Last() ok = true on empty history")
	}
	if len(h.items) != defaultTaskHistoryCapacity {
		t.Errorf("capacity = %d, want %d", len(h.items), defaultTaskHistoryCapacity)
	}
}

// TestNewTaskExecutionRecord verifies the record of a finished handle
// Given: A handle that finished with a panic
// When: A record is built
// Then: It is marked failed and panicked with the worker and timing
func TestNewTaskExecutionRecord(t *testing.T) {
	// Arrange
	r := NewRegistry()
	h := NewNamedHandle("parse", TaskFunc(func(ctx context.Context) error { return nil }))
	if err := r.Accept(h); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	h.MarkRunning(4)
	h.MarkFinished(&TaskExecutionError{TaskID: h.ID(), Name: h.Name(), Panic: "boom"})
	r.Finish(h)

	// Act
	rec := NewTaskExecutionRecord("pool-a", h)

	// Assert
	if rec.PoolID != "pool-a" || rec.Name != "parse" || rec.WorkerID != 4 {
		t.Errorf("record = %+v", rec)
	}
	if !rec.Failed || !rec.Panicked {
		t.Errorf("Failed = %v, Panicked = %v, want true, true", rec.Failed, rec.Panicked)
	}
	if rec.Duration < 0 || rec.FinishedAt.Before(rec.StartedAt) {
		t.Errorf("timing = %v..%v", rec.StartedAt, rec.FinishedAt)
	}

	plain := NewTaskExecutionRecord("pool-a", noopFinished(t, errors.New("x")))
	if !plain.Failed || plain.Panicked {
		t.Errorf("Failed = %v, Panicked = %v, want true, false", plain.Failed, plain.Panicked)
	}
}

func noopFinished(t *testing.T, err error) *Handle {
	t.Helper()
	r := NewRegistry()
	h := noopHandle()
	if acceptErr := r.Accept(h); acceptErr != nil {
		t.Fatalf("Accept() error = %v", acceptErr)
	}
	finish(r, h, err)
	return h
}
