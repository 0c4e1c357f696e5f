package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xylose/go-threadcache"
	"github.com/xylose/go-threadcache/core"
	"github.com/xylose/go-threadcache/internal/workload"
)

type handlesOptions struct {
	rangeFlags
	failRate float64
	seed     uint64
	retries  uint
	retryMin time.Duration
}

func newHandlesCommand(a *app) *cobra.Command {
	opts := &handlesOptions{}
	cmd := &cobra.Command{
		Use:   "handles",
		Short: "Sum log(x) with explicit task handles",
		Long: `Submit one task per window of the range, then repeatedly wait for any of
the pending handles to finish and fold in their results.

With --fail-rate a fraction of executions fail. Failed windows are
resubmitted as new tasks, up to --retries rounds with exponential backoff.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandles(cmd, a, opts)
		},
	}
	opts.register(cmd)
	fs := cmd.Flags()
	fs.Float64Var(&opts.failRate, "fail-rate", 0, "fraction of executions that fail (0 to 1)")
	fs.Uint64Var(&opts.seed, "seed", 1, "seed of the failure sequence")
	fs.UintVar(&opts.retries, "retries", 0, "resubmission rounds for failed tasks")
	fs.DurationVar(&opts.retryMin, "retry-interval", 10*time.Millisecond, "initial delay between resubmission rounds")
	return cmd
}

// tally accumulates the results collected from finished handles.
type tally struct {
	sum      float64
	finished int
	failed   int
}

func runHandles(cmd *cobra.Command, a *app, opts *handlesOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.failRate < 0 || opts.failRate > 1 {
		return fmt.Errorf("%w: --fail-rate must be in [0, 1], got %g", core.ErrInvalidArgument, opts.failRate)
	}
	windows, err := opts.tasks()
	if err != nil {
		return err
	}

	env, err := a.start(ctx)
	if err != nil {
		return err
	}
	defer env.stop()

	injector := workload.NewFaultInjector(opts.failRate, opts.seed)
	fmt.Fprintf(out, "queued %d tasks\n", len(windows))

	var t tally
	failed, err := collect(ctx, env.pool, injector, windows, &t)
	if err != nil {
		return err
	}

	if len(failed) > 0 && opts.retries > 0 {
		failed, err = retryFailed(ctx, a.logger, env.pool, injector, failed, opts, &t)
		if err != nil && !errors.Is(err, errTasksFailed) {
			return err
		}
	}

	printTally(out, t)
	if len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d windows", errTasksFailed, len(failed), len(windows))
	}
	return nil
}

var errTasksFailed = errors.New("tasks failed")

// collect submits one fresh task per window and drains the pool until every
// handle finished. It returns the windows whose task failed.
func collect(ctx context.Context, pool *threadcache.WorkerPool, injector *workload.FaultInjector, windows []*workload.LogSum, t *tally) ([]*workload.LogSum, error) {
	pending := core.NewTaskSet()
	for _, w := range windows {
		task := injector.Wrap(workload.NewLogSum(w.From, w.To, w.Step))
		h, err := pool.Submit(task)
		if err != nil {
			return nil, err
		}
		pending.Add(h)
	}

	var failed []*workload.LogSum
	for pending.Len() > 0 {
		finished, err := pool.WaitForTasks(ctx, pending)
		if err != nil {
			return nil, err
		}
		t.finished += finished.Len()

		for _, h := range finished.Handles() {
			task := h.Task().(*workload.Faulty)
			if h.Err() != nil {
				t.failed++
				failed = append(failed, task.LogSum)
				continue
			}
			t.sum += task.Result
		}
		pending = pending.Difference(finished)
	}
	return failed, nil
}

// retryFailed resubmits the failed windows round by round until they all
// succeed or the retry budget is spent.
func retryFailed(ctx context.Context, logger *zap.Logger, pool *threadcache.WorkerPool, injector *workload.FaultInjector, failed []*workload.LogSum, opts *handlesOptions, t *tally) ([]*workload.LogSum, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.retryMin

	round := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		round++
		logger.Info("resubmitting failed tasks", zap.Int("round", round), zap.Int("tasks", len(failed)))

		remaining, err := collect(ctx, pool, injector, failed, t)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		failed = remaining
		if len(failed) > 0 {
			return struct{}{}, fmt.Errorf("%w: %d after round %d", errTasksFailed, len(failed), round)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(opts.retries),
		backoff.WithMaxElapsedTime(0),
	)
	return failed, err
}

func printTally(out io.Writer, t tally) {
	fmt.Fprintf(out, "sum:  %.6g\nfinished %d tasks\n", t.sum, t.finished)
	if t.failed > 0 {
		fmt.Fprintf(out, "failed %d executions\n", t.failed)
	}
}
