// Package poolrt abstracts the asynchronous runtime capability the pool
// core needs: spawning background work, sleeping, and ticking on an
// interval. The pool core depends only on this interface so tests can
// swap in a deterministic clock instead of sleeping wall-clock time.
package poolrt

import (
	"context"
	"time"
)

// Ticker is the minimal periodic-wakeup capability the reaper needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Runtime is the pool core's window onto the surrounding async runtime.
// Go's own goroutine scheduler satisfies this trivially (see GoRuntime);
// the interface exists so the reaper and connector worker never call
// `go`/`time.Sleep` directly.
type Runtime interface {
	// Spawn runs fn on a new goroutine (or task, on other runtimes).
	Spawn(fn func())

	// Sleep blocks the calling goroutine for d, or until ctx is
	// cancelled, whichever comes first.
	Sleep(ctx context.Context, d time.Duration)

	// Every returns a Ticker that fires every d.
	Every(d time.Duration) Ticker
}

// GoRuntime is the default Runtime, backed directly by the Go scheduler
// and the standard library's time package.
type GoRuntime struct{}

// Spawn launches fn on a bare goroutine.
func (GoRuntime) Spawn(fn func()) {
	go fn()
}

// Sleep waits for d or ctx cancellation.
func (GoRuntime) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Every wraps a time.Ticker.
func (GoRuntime) Every(d time.Duration) Ticker {
	return &goTicker{t: time.NewTicker(d)}
}

type goTicker struct {
	t *time.Ticker
}

func (g *goTicker) C() <-chan time.Time { return g.t.C }
func (g *goTicker) Stop()               { g.t.Stop() }
