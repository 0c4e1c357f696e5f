package workload

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

// ErrInjected is returned by a Faulty task chosen to fail.
var ErrInjected = errors.New("workload: injected failure")

// FaultInjector fails a fixed fraction of executions, reproducibly for a
// given seed.
type FaultInjector struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

// NewFaultInjector fails roughly rate of all executions. rate <= 0 never
// fails and rate >= 1 always fails.
func NewFaultInjector(rate float64, seed uint64) *FaultInjector {
	return &FaultInjector{
		rate: rate,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// ShouldFail draws the next decision.
func (f *FaultInjector) ShouldFail() bool {
	if f == nil || f.rate <= 0 {
		return false
	}
	if f.rate >= 1 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < f.rate
}

// Wrap returns a task that runs t unless the injector decides to fail it.
func (f *FaultInjector) Wrap(t *LogSum) *Faulty {
	return &Faulty{LogSum: t, injector: f}
}

// Faulty is a LogSum that may fail before doing any work.
type Faulty struct {
	*LogSum
	injector *FaultInjector
}

// Execute fails with ErrInjected or runs the wrapped LogSum.
func (f *Faulty) Execute(ctx context.Context) error {
	if f.injector.ShouldFail() {
		return ErrInjected
	}
	return f.LogSum.Execute(ctx)
}

// Run implements the evaluator functor contract.
func (f *Faulty) Run(ctx context.Context) error {
	return f.Execute(ctx)
}
