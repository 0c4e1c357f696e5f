// Package workload holds the numerical demo workloads driven by the
// threadcache command: a log-sum integrator split into many small tasks, a
// scatter-only announcer and a fault injector for retry demos.
package workload

import (
	"context"
	"errors"
	"fmt"
	"math"
)

const (
	// ctxCheckInterval is how many iterations run between context checks.
	ctxCheckInterval = 4096

	// MaxPoints bounds the number of terms one LogSum adds.
	MaxPoints = 1 << 40
	// MaxWindows bounds the number of tasks Split creates.
	MaxWindows = 1 << 20
)

// Sum gathers LogSum results.
type Sum struct {
	Value float64
	Tasks int
}

// LogSum adds log(x) for x = From, From+Step, ... while x <= To.
// It is both a core.Task and an evaluator functor.
type LogSum struct {
	From, To, Step float64

	Result float64
}

// NewLogSum creates a LogSum over [from, to] stepping by step.
func NewLogSum(from, to, step float64) *LogSum {
	return &LogSum{From: from, To: to, Step: step}
}

// Execute computes Result. It aborts with ctx.Err() if the pool context is
// cancelled mid-range.
func (t *LogSum) Execute(ctx context.Context) error {
	n, err := t.points()
	if err != nil {
		return err
	}

	var sum float64
	for i := range n {
		sum += math.Log(t.From + float64(i)*t.Step)
		if (i+1)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	t.Result = sum
	return nil
}

// points returns how many terms x = From + i*Step satisfy x <= To.
func (t *LogSum) points() (int, error) {
	if t.Step <= 0 {
		return 0, fmt.Errorf("logsum: step must be positive, got %g", t.Step)
	}
	if t.From <= 0 {
		return 0, fmt.Errorf("logsum: log undefined for %g", t.From)
	}
	if t.From+t.Step == t.From {
		return 0, fmt.Errorf("logsum: step %g vanishes next to %g", t.Step, t.From)
	}
	if t.To < t.From {
		return 0, nil
	}

	n := math.Floor((t.To-t.From)/t.Step) + 1
	if n > MaxPoints {
		return 0, fmt.Errorf("logsum: %g terms exceed the limit of %d", n, MaxPoints)
	}
	return int(n), nil
}

// Run implements the evaluator functor contract.
func (t *LogSum) Run(ctx context.Context) error {
	return t.Execute(ctx)
}

// Accept folds Result into s.
func (t *LogSum) Accept(s *Sum) {
	s.Value += t.Result
	s.Tasks++
}

// Split covers [start, end) with windows of the given width. Each window
// integrates with a step of width*stepFraction.
func Split(start, end, width, stepFraction float64) ([]*LogSum, error) {
	if width <= 0 || stepFraction <= 0 {
		return nil, errors.New("workload: width and step fraction must be positive")
	}
	if start <= 0 || end <= start {
		return nil, fmt.Errorf("workload: invalid range [%g, %g)", start, end)
	}
	if start+width == start {
		return nil, fmt.Errorf("workload: width %g vanishes next to %g", width, start)
	}
	step := width * stepFraction
	if end+step == end {
		return nil, fmt.Errorf("workload: step %g vanishes next to %g", step, end)
	}

	n := math.Ceil((end - start) / width)
	if n > MaxWindows {
		return nil, fmt.Errorf("workload: %g windows exceed the limit of %d", n, MaxWindows)
	}

	tasks := make([]*LogSum, 0, int(n))
	for i := range int(n) {
		x := start + float64(i)*width
		tasks = append(tasks, NewLogSum(x, x+width, step))
	}
	return tasks, nil
}
