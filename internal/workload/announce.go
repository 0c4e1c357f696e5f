package workload

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Announce writes one line and then idles for Pause. It produces nothing to
// gather.
type Announce struct {
	Label string
	Pause time.Duration
	Out   io.Writer
}

// Run prints the announcement and waits for Pause or ctx, whichever ends
// first.
func (a Announce) Run(ctx context.Context) error {
	if _, err := fmt.Fprintf(a.Out, "%s working!\n", a.Label); err != nil {
		return err
	}
	if a.Pause <= 0 {
		return nil
	}

	timer := time.NewTimer(a.Pause)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// LockedWriter serializes writes to w so concurrent announcers never
// interleave lines.
func LockedWriter(w io.Writer) io.Writer {
	return &lockedWriter{w: w}
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
