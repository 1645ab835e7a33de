// Package connpool is a generic asynchronous connection pool: it
// amortizes the cost of creating expensive, long-lived connections by
// maintaining a bounded set of them and lending them out to concurrent
// callers. It is generic over the resource via Manager, so the same
// pool engine serves database sessions, Redis clients, websocket
// channels, or any other pluggable connection type.
package connpool

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/nilsbauer/connpool/internal/core"
	"github.com/nilsbauer/connpool/pkg/errsink"
	"github.com/nilsbauer/connpool/pkg/manager"
	"github.com/nilsbauer/connpool/pkg/poolrt"
)

// ErrTimedOut is returned (wrapped in *TimedOutError) when
// connection_timeout elapses before Get can deliver a connection.
var ErrTimedOut = core.ErrTimedOut

// TimedOutError is returned by Get on timeout. It additionally carries
// the most recent connector error the pool has observed, resolving the
// Open Question of whether the caller should see background failures.
type TimedOutError = core.TimedOutError

// ManagerError wraps a failure returned directly by the Manager.
type ManagerError = manager.Error

// Stats is the snapshot returned by Pool.State.
type Stats struct {
	Connections     uint32
	IdleConnections uint32
	LastConnID      string
}

// Pool lends out connections of type C, opened and validated by a
// Manager[C]. The zero value is not usable; construct one with New or
// a Builder. C must be comparable: the plain Get/Put API (unlike
// GetConn/Release, which carries birth on the guard itself) tracks each
// checked-out connection's birth in a map keyed by the connection value,
// since every real connection type here (a pointer, an int handle) is
// naturally comparable.
type Pool[C comparable] struct {
	sp *core.SharedPool[C]

	birthMu sync.Mutex
	birth   map[C]time.Time
}

// New constructs a Pool from a fully-populated Config. Most callers
// should prefer NewBuilder.
func New[C comparable](cfg Config, m manager.Manager[C]) *Pool[C] {
	rt := cfg.Runtime
	if rt == nil {
		rt = poolrt.GoRuntime{}
	}
	sink := cfg.ErrorSink
	if sink == nil {
		sink = errsink.NopSink{}
	}

	return &Pool[C]{
		sp:    core.New[C](cfg.toCore(), m, rt, sink),
		birth: make(map[C]time.Time),
	}
}

// Get checks out a connection, blocking until one becomes available or
// connection_timeout elapses. The returned error, if any, is either
// *TimedOutError (check with errors.Is(err, connpool.ErrTimedOut)) or a
// context error from ctx.
func (p *Pool[C]) Get(ctx context.Context) (C, error) {
	c, birth, err := p.sp.CheckoutWithBirth(ctx)
	if err != nil {
		return c, err
	}
	p.birthMu.Lock()
	p.birth[c] = birth
	p.birthMu.Unlock()
	return c, nil
}

// Conn wraps a checked-out connection together with the Pool it came
// from and the birth it was issued with, offering the guard-object
// convenience spec.md deliberately leaves to the surrounding API layer.
type Conn[C comparable] struct {
	pool  *Pool[C]
	c     C
	birth time.Time
}

// GetConn checks out a connection and wraps it for Release-based return.
func (p *Pool[C]) GetConn(ctx context.Context) (*Conn[C], error) {
	c, birth, err := p.sp.CheckoutWithBirth(ctx)
	if err != nil {
		var zero Conn[C]
		return &zero, err
	}
	return &Conn[C]{pool: p, c: c, birth: birth}, nil
}

// Value returns the underlying connection.
func (c *Conn[C]) Value() C { return c.c }

// Release returns the connection to the pool, preserving the birth it
// was checked out with. Calling it more than once, or on a zero Conn, is
// a caller bug and is not guarded against, matching the Manager
// contract's "cheap, synchronous, trusted caller" discipline used
// throughout the pool core.
func (c *Conn[C]) Release() {
	c.pool.sp.Return(c.c, c.birth)
}

// Put returns a connection to the pool, restoring the birth it was
// issued with by Get (falling back to time.Now() only if c was never
// obtained from this Pool, which is a caller bug). Callers that used
// GetConn should prefer Conn.Release instead.
func (p *Pool[C]) Put(c C) {
	p.birthMu.Lock()
	birth, ok := p.birth[c]
	delete(p.birth, c)
	p.birthMu.Unlock()
	if !ok {
		birth = time.Now()
	}
	p.sp.Return(c, birth)
}

// RunWithConnection checks out a connection, runs fn with it, and always
// returns it to the pool afterward — the surrounding-API convenience
// spec.md names as expected of a complete library.
func (p *Pool[C]) RunWithConnection(ctx context.Context, fn func(C) error) error {
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Put(c)
	return fn(c)
}

// State returns a snapshot of the pool's current connection counts.
func (p *Pool[C]) State() Stats {
	s := p.sp.State()
	return Stats{
		Connections:     s.Connections,
		IdleConnections: s.IdleConnections,
		LastConnID:      s.LastConnID,
	}
}

// Close stops the pool's background work (reaper, in-flight connector
// retries give up on their next checkpoint). Idempotent. Idle
// connections whose underlying type satisfies io.Closer are closed;
// connections still checked out at the time of Close are the caller's
// responsibility.
func (p *Pool[C]) Close() {
	p.sp.Close()
	p.drainIdleCloseable()
}

func (p *Pool[C]) drainIdleCloseable() {
	for {
		s := p.sp.State()
		if s.IdleConnections == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		c, err := p.sp.Checkout(ctx)
		cancel()
		if err != nil {
			return
		}
		if closer, ok := any(c).(io.Closer); ok {
			_ = closer.Close()
		}
	}
}
