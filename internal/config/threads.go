package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/xylose/go-threadcache/core"
)

const (
	// EnvNumThreads overrides the default worker count when it holds a
	// positive integer.
	EnvNumThreads = "NUM_PTHREADS"

	MinThreads = 1
	MaxThreads = 10000

	// FallbackThreads is used when the number of execution units is unknown.
	FallbackThreads = 2
)

// ValidateMaxThreads checks that n is a usable worker count.
func ValidateMaxThreads(n int) error {
	if n < MinThreads || n > MaxThreads {
		return core.ConfigurationError("max threads must be in [%d, %d], got %d", MinThreads, MaxThreads, n)
	}
	return nil
}

// ResolveMaxThreads returns the worker count a pool should start with.
// A non-zero explicit value wins and is validated. Otherwise the
// NUM_PTHREADS environment variable is used if it parses as a positive
// integer, then GOMAXPROCS, then FallbackThreads.
func ResolveMaxThreads(explicit int) (int, error) {
	if explicit != 0 {
		if err := ValidateMaxThreads(explicit); err != nil {
			return 0, err
		}
		return explicit, nil
	}

	if n, ok := ThreadsFromEnv(); ok {
		return n, nil
	}

	if n := runtime.GOMAXPROCS(0); n >= MinThreads {
		return min(n, MaxThreads), nil
	}
	return FallbackThreads, nil
}

// ThreadsFromEnv reads NUM_PTHREADS. Unset, unparseable or out of range
// values report false.
func ThreadsFromEnv() (int, bool) {
	raw, ok := os.LookupEnv(EnvNumThreads)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ValidateMaxThreads(n) != nil {
		return 0, false
	}
	return n, true
}
