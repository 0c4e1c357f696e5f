package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xylose/go-threadcache"
	"github.com/xylose/go-threadcache/internal/workload"
)

type scatterOptions struct {
	rangeFlags
	announcers int
	pause      time.Duration
}

func newScatterCommand(a *app) *cobra.Command {
	opts := &scatterOptions{}
	cmd := &cobra.Command{
		Use:   "scatter",
		Short: "Sum log(x) with a scatter/gather evaluator",
		Long: `Queue one functor per window of the range on an evaluator, gather the
partial sums, then run a few announcers that produce nothing to gather.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScatter(cmd, a, opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().IntVar(&opts.announcers, "announcers", 3, "scatter-only functors run after the gather")
	cmd.Flags().DurationVar(&opts.pause, "pause", time.Second, "time each announcer idles")
	return cmd
}

func runScatter(cmd *cobra.Command, a *app, opts *scatterOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	tasks, err := opts.tasks()
	if err != nil {
		return err
	}

	env, err := a.start(ctx)
	if err != nil {
		return err
	}
	defer env.stop()

	fmt.Fprintln(out, "work that requires a gather operation:")
	eval := threadcache.NewEvaluator[*workload.LogSum](env.pool)
	for _, t := range tasks {
		if err := eval.Eval(t); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "queued %d tasks\n", len(tasks))

	var sum workload.Sum
	start := time.Now()
	if err := threadcache.Gather(ctx, eval, &sum); err != nil {
		return err
	}
	a.logger.Debug("gather finished",
		zap.String("evaluator", eval.ID()),
		zap.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(out, "sum:  %.6g\nfinished %d tasks\n", sum.Value, sum.Tasks)

	if opts.announcers <= 0 {
		return nil
	}

	fmt.Fprintln(out, "work that doesn't require a gather operation:")
	w := workload.LockedWriter(out)
	announce := threadcache.NewEvaluator[workload.Announce](env.pool)
	for i := range opts.announcers {
		label := fmt.Sprintf("announcer %d", i+1)
		if err := announce.Eval(workload.Announce{Label: label, Pause: opts.pause, Out: w}); err != nil {
			return err
		}
	}
	return announce.JoinAll(ctx)
}
