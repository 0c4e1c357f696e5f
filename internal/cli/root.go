// Package cli implements the threadcache command: two demo drivers for the
// worker pool and a config dump.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xylose/go-threadcache/internal/config"
)

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := newApp()

	root := &cobra.Command{
		Use:   "threadcache",
		Short: "Run numeric workloads on a fixed-size worker pool",
		Long: `threadcache drives a worker pool with two submission models:
a scatter/gather evaluator (scatter) and explicit task handles collected
as they finish (handles).

Worker count: --threads, then NUM_PTHREADS, then 2.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	config.RegisterFlags(root.PersistentFlags())
	if err := config.BindFlags(a.v, root.PersistentFlags()); err != nil {
		panic(fmt.Sprintf("cli: %v", err))
	}

	root.AddCommand(
		newScatterCommand(a),
		newHandlesCommand(a),
		newConfigCommand(a),
	)
	return root
}
