package cli

import (
	"bytes"
	"errors"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/xylose/go-threadcache/core"
	"github.com/xylose/go-threadcache/internal/config"
)

// smallRange keeps the workload to four windows.
var smallRange = []string{"--from", "1", "--to", "2", "--width", "0.25", "--step-fraction", "1e-3", "--log-level", "error"}

// executeCommand runs a fresh command tree with args and returns captured output
func executeCommand(args ...string) (string, error) {
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// clearThreadsEnv unsets NUM_PTHREADS for the duration of the test.
func clearThreadsEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvNumThreads, "")
	os.Unsetenv(config.EnvNumThreads)
}

var sumLine = regexp.MustCompile(`sum:\s+(\S+)`)

func parseSum(t *testing.T, output string) string {
	t.Helper()
	m := sumLine.FindStringSubmatch(output)
	if m == nil {
		t.Fatalf("no sum line in output:\n%s", output)
	}
	return m[1]
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()

	if root.Use != "threadcache" {
		t.Errorf("root.Use = %q, want %q", root.Use, "threadcache")
	}

	cmds := make(map[string]*cobra.Command)
	for _, c := range root.Commands() {
		cmds[c.Name()] = c
	}
	for _, want := range []string{"scatter", "handles", "config"} {
		if cmds[want] == nil {
			t.Errorf("expected subcommand %q not found", want)
		}
	}

	for _, flag := range []string{"threads", "pool-id", "metrics", "log-level"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag %q not registered", flag)
		}
	}
}

// TestScatterCommand verifies the evaluator driver
// Given: A four-window range and two announcers
// When: scatter runs
// Then: All windows are gathered and every announcer reports
func TestScatterCommand(t *testing.T) {
	args := append([]string{"scatter", "--threads", "2", "--announcers", "2", "--pause", "0"}, smallRange...)

	output, err := executeCommand(args...)
	if err != nil {
		t.Fatalf("scatter error = %v\n%s", err, output)
	}

	for _, want := range []string{
		"queued 4 tasks",
		"finished 4 tasks",
		"work that doesn't require a gather operation:",
		"announcer 1 working!",
		"announcer 2 working!",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestHandlesCommand_MatchesScatter(t *testing.T) {
	scatterOut, err := executeCommand(append([]string{"scatter", "--threads", "3", "--announcers", "0"}, smallRange...)...)
	if err != nil {
		t.Fatalf("scatter error = %v", err)
	}
	handlesOut, err := executeCommand(append([]string{"handles", "--threads", "1"}, smallRange...)...)
	if err != nil {
		t.Fatalf("handles error = %v", err)
	}

	if !strings.Contains(handlesOut, "queued 4 tasks") || !strings.Contains(handlesOut, "finished 4 tasks") {
		t.Errorf("unexpected handles output:\n%s", handlesOut)
	}
	if got, want := parseSum(t, handlesOut), parseSum(t, scatterOut); got != want {
		t.Errorf("handles sum = %s, scatter sum = %s", got, want)
	}
}

// TestHandlesCommand_RetriesRecover verifies resubmission of failed windows
// Given: A 30% failure rate and ten retry rounds
// When: handles runs
// Then: Every window eventually succeeds and the sum matches a clean run
func TestHandlesCommand_RetriesRecover(t *testing.T) {
	clean, err := executeCommand(append([]string{"handles", "--threads", "2"}, smallRange...)...)
	if err != nil {
		t.Fatalf("clean run error = %v", err)
	}

	args := append([]string{"handles", "--threads", "2", "--fail-rate", "0.3", "--seed", "7",
		"--retries", "10", "--retry-interval", "1ms"}, smallRange...)
	output, err := executeCommand(args...)
	if err != nil {
		t.Fatalf("faulty run error = %v\n%s", err, output)
	}

	if got, want := parseSum(t, output), parseSum(t, clean); got != want {
		t.Errorf("sum with retries = %s, want %s", got, want)
	}
}

func TestHandlesCommand_RetriesExhausted(t *testing.T) {
	args := append([]string{"handles", "--threads", "2", "--fail-rate", "1",
		"--retries", "2", "--retry-interval", "1ms"}, smallRange...)

	output, err := executeCommand(args...)

	if !errors.Is(err, errTasksFailed) {
		t.Fatalf("error = %v, want errTasksFailed", err)
	}
	// one initial round plus two retries, four windows each
	if !strings.Contains(output, "finished 12 tasks") || !strings.Contains(output, "failed 12 executions") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestHandlesCommand_InvalidFailRate(t *testing.T) {
	_, err := executeCommand(append([]string{"handles", "--fail-rate", "1.5"}, smallRange...)...)

	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestScatterCommand_InvalidRange(t *testing.T) {
	_, err := executeCommand("scatter", "--from", "0", "--log-level", "error")

	if err == nil {
		t.Error("expected error for a range starting at 0")
	}
}

func TestScatterCommand_RangeTooFine(t *testing.T) {
	_, err := executeCommand("scatter", "--from", "1e17", "--to", "1.00000000000001e17", "--log-level", "error")

	if err == nil {
		t.Error("expected error for a window narrower than the float spacing at --from")
	}
}

func TestScatterCommand_WithMetrics(t *testing.T) {
	args := append([]string{"scatter", "--threads", "2", "--announcers", "0",
		"--metrics", "--metrics-addr", "127.0.0.1:0", "--metrics-namespace", "clitest"}, smallRange...)

	output, err := executeCommand(args...)
	if err != nil {
		t.Fatalf("scatter with metrics error = %v\n%s", err, output)
	}
	if !strings.Contains(output, "finished 4 tasks") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestConfigCommand_Workers(t *testing.T) {
	tests := []struct {
		name string
		env  string
		args []string
		want string
	}{
		{name: "flag wins", env: "6", args: []string{"--threads", "4"}, want: "workers = 4"},
		{name: "environment", env: "3", want: "workers = 3"},
		{name: "invalid environment ignored", env: "many", want: "workers = 2"},
		{name: "default", want: "workers = 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearThreadsEnv(t)
			if tt.env != "" {
				t.Setenv(config.EnvNumThreads, tt.env)
			}

			output, err := executeCommand(append([]string{"config"}, tt.args...)...)
			if err != nil {
				t.Fatalf("config error = %v", err)
			}
			if !strings.Contains(output, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, output)
			}
		})
	}
}

func TestConfigCommand_Environment(t *testing.T) {
	t.Setenv("THREADCACHE_POOL_ID", "from-env")

	output, err := executeCommand("config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	if !strings.Contains(output, "pool.id = from-env") {
		t.Errorf("output missing environment override:\n%s", output)
	}
}

func TestConfigCommand_InvalidLogLevel(t *testing.T) {
	t.Setenv("THREADCACHE_LOG_LEVEL", "verbose")

	_, err := executeCommand("config")

	if !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}
