// Package core implements the pool engine: shared state, admission
// control, the checkout/return protocol, the connector worker and the
// reaper. It is unexported — callers only ever see the public
// connpool.Pool wrapper.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nilsbauer/connpool/pkg/errsink"
	"github.com/nilsbauer/connpool/pkg/manager"
	"github.com/nilsbauer/connpool/pkg/poolrt"
)

// ErrTimedOut is returned by Checkout when connection_timeout elapses
// before a connection becomes available.
var ErrTimedOut = timedOutSentinel{}

type timedOutSentinel struct{}

func (timedOutSentinel) Error() string { return "connpool: timed out waiting for connection" }

// State is the observable snapshot returned by SharedPool.State.
type State struct {
	Connections     uint32
	IdleConnections uint32
	LastConnID      string
}

// SharedPool is the pool's shared mutable state plus its immutable
// collaborators. Exactly one SharedPool exists per connpool.Pool.
// Background tasks (reaper, connector) hold the *SharedPool itself and
// check its stopped channel at every checkpoint; that channel plays the
// role bb8 gives a Weak<SharedPool>: once Close closes it, the reaper
// exits and connectors give up at their next checkpoint.
type SharedPool[C any] struct {
	conf    Config
	manager manager.Manager[C]
	rt      poolrt.Runtime
	sink    errsink.ErrorSink

	mu sync.Mutex
	in internals[C]

	telemetryMu sync.RWMutex
	lastConnID  string
	lastErr     error

	stopped  chan struct{}
	stopOnce sync.Once
}

// New constructs a SharedPool, replenishes it toward min_idle, and
// schedules the reaper if configured.
func New[C any](cfg Config, m manager.Manager[C], rt poolrt.Runtime, sink errsink.ErrorSink) *SharedPool[C] {
	sp := &SharedPool[C]{
		conf:    cfg,
		manager: m,
		rt:      rt,
		sink:    sink,
		stopped: make(chan struct{}),
	}

	sp.mu.Lock()
	n := wantedLocked(sp.conf, &sp.in)
	approvals := mintApprovalsLocked(sp.conf, &sp.in, n)
	sp.mu.Unlock()
	sp.dispatch(approvals)

	scheduleReaping(sp)

	return sp
}

// dispatch spawns one connector worker per approval. Must be called
// with the lock released.
func (sp *SharedPool[C]) dispatch(approvals []approval) {
	for range approvals {
		sp.rt.Spawn(func() {
			addConnection(sp)
		})
	}
}

// Checkout implements the fast-path/slow-path protocol of spec §4.2.
func (sp *SharedPool[C]) Checkout(ctx context.Context) (C, error) {
	c, _, err := sp.CheckoutWithBirth(ctx)
	return c, err
}

// CheckoutWithBirth is Checkout, additionally returning the instant the
// physical connection was established. Callers that must later Return
// the connection need this to preserve birth across the round trip
// instead of re-stamping it to time.Now(), which would defeat
// max_lifetime expiry for any connection that is ever checked out.
func (sp *SharedPool[C]) CheckoutWithBirth(ctx context.Context) (C, time.Time, error) {
	rec, err := sp.checkoutRecord(ctx)
	if err != nil {
		var zero C
		return zero, time.Time{}, err
	}
	return rec.conn, rec.birth, nil
}

func (sp *SharedPool[C]) checkoutRecord(ctx context.Context) (conn[C], error) {
	for {
		sp.mu.Lock()
		ic, ok := sp.in.popIdleLocked()
		if ok {
			n := wantedLocked(sp.conf, &sp.in)
			approvals := mintApprovalsLocked(sp.conf, &sp.in, n)
			sp.mu.Unlock()
			sp.dispatch(approvals)

			if !sp.conf.TestOnCheckOut {
				return ic.conn, nil
			}

			if err := sp.manager.IsValid(ctx, ic.conn.conn); err != nil {
				sp.mu.Lock()
				sp.in.numConns--
				n := wantedLocked(sp.conf, &sp.in)
				approvals := mintApprovalsLocked(sp.conf, &sp.in, n)
				sp.mu.Unlock()
				sp.dispatch(approvals)
				continue
			}
			return ic.conn, nil
		}

		w := newWaiter[C]()
		sp.in.pushWaiterLocked(w)
		approvals := mintApprovalsLocked(sp.conf, &sp.in, 1)
		sp.mu.Unlock()
		sp.dispatch(approvals)

		rec, err := sp.awaitWaiter(ctx, w)
		if err != nil {
			return conn[C]{}, err
		}
		return rec, nil
	}
}

// awaitWaiter blocks for at most connection_timeout (further bounded by
// ctx) for the waiter to be delivered a connection. On timeout/cancel it
// races giveUp against a concurrent offer instead of just closing a
// signal channel: if this call wins, no connection will ever be
// delivered and it reports failure; if offer already won, a connection
// is guaranteed to already be sitting in delivered, so the receive below
// cannot block for any meaningful time.
func (sp *SharedPool[C]) awaitWaiter(ctx context.Context, w waiter[C]) (conn[C], error) {
	timer := time.NewTimer(sp.conf.ConnectionTimeout)
	defer timer.Stop()

	select {
	case c := <-w.delivered:
		return c, nil
	case <-timer.C:
		if w.giveUp() {
			return conn[C]{}, &TimedOutError{lastErr: sp.LastError()}
		}
		return <-w.delivered, nil
	case <-ctx.Done():
		if w.giveUp() {
			return conn[C]{}, ctx.Err()
		}
		return <-w.delivered, nil
	}
}

// TimedOutError wraps ErrTimedOut with the most recent connector error
// the pool has observed, if any.
type TimedOutError struct {
	lastErr error
}

func (e *TimedOutError) Error() string { return ErrTimedOut.Error() }
func (e *TimedOutError) Unwrap() error { return ErrTimedOut }

// LastError returns the most recent connector failure observed by this
// pool, or nil if none has occurred yet. Best-effort: it is not
// necessarily the failure that caused this particular timeout.
func (e *TimedOutError) LastError() error { return e.lastErr }

// Return implements the return protocol of spec §4.3: check brokenness
// outside the lock, then either drop or attempt direct hand-off before
// falling back to idle insertion.
func (sp *SharedPool[C]) Return(c C, birth time.Time) {
	broken := sp.manager.HasBroken(c)

	sp.mu.Lock()
	if broken {
		sp.in.numConns--
		n := wantedLocked(sp.conf, &sp.in)
		approvals := mintApprovalsLocked(sp.conf, &sp.in, n)
		sp.mu.Unlock()
		sp.dispatch(approvals)
		return
	}

	for {
		w, ok := sp.in.popWaiterLocked()
		if !ok {
			break
		}
		if w.offer(conn[C]{conn: c, birth: birth}) {
			sp.mu.Unlock()
			return
		}
	}

	sp.in.pushIdleLocked(idleConn[C]{
		conn:      conn[C]{conn: c, birth: birth},
		idleStart: time.Now(),
	})
	sp.mu.Unlock()
}

// State returns a snapshot of the pool's connection counts.
func (sp *SharedPool[C]) State() State {
	sp.mu.Lock()
	s := State{
		Connections:     sp.in.numConns,
		IdleConnections: uint32(len(sp.in.idle)),
	}
	sp.mu.Unlock()

	sp.telemetryMu.RLock()
	s.LastConnID = sp.lastConnID
	sp.telemetryMu.RUnlock()
	return s
}

// LastError returns the most recent connector error observed, or nil.
func (sp *SharedPool[C]) LastError() error {
	sp.telemetryMu.RLock()
	defer sp.telemetryMu.RUnlock()
	return sp.lastErr
}

func (sp *SharedPool[C]) recordConnID(id uuid.UUID) {
	sp.telemetryMu.Lock()
	sp.lastConnID = id.String()
	sp.telemetryMu.Unlock()
}

func (sp *SharedPool[C]) recordErr(err error) {
	sp.telemetryMu.Lock()
	sp.lastErr = err
	sp.telemetryMu.Unlock()
}

// Stopped returns the channel that closes once Close has run. Background
// tasks select on it at every checkpoint in place of a weak-reference
// upgrade.
func (sp *SharedPool[C]) Stopped() <-chan struct{} {
	return sp.stopped
}

// Close stops background work. Idempotent.
func (sp *SharedPool[C]) Close() {
	sp.stopOnce.Do(func() {
		close(sp.stopped)
	})
}
