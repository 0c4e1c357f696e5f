package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print every configuration key after flags, THREADCACHE_* environment
variables and defaults were merged, followed by the worker count a pool
would start with.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			keys := a.v.AllKeys()
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s = %v\n", k, a.v.Get(k))
			}
			fmt.Fprintf(out, "workers = %d\n", a.threads())
			return nil
		},
	}
}
