package cli

import (
	"github.com/spf13/cobra"

	"github.com/xylose/go-threadcache/internal/workload"
)

// rangeFlags describes the log-sum workload shared by scatter and handles.
type rangeFlags struct {
	from, to     float64
	width        float64
	stepFraction float64
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&r.from, "from", 1, "start of the summed range")
	fs.Float64Var(&r.to, "to", 10, "end of the summed range")
	fs.Float64Var(&r.width, "width", 3e-2, "range covered by one task")
	fs.Float64Var(&r.stepFraction, "step-fraction", 1e-5, "integration step as a fraction of --width")
}

func (r *rangeFlags) tasks() ([]*workload.LogSum, error) {
	return workload.Split(r.from, r.to, r.width, r.stepFraction)
}
