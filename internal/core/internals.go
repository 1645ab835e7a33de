package core

import (
	"sync/atomic"
	"time"
)

// conn is a physical connection record: the manager-supplied value plus
// the instant it was established, used for max_lifetime expiry.
type conn[C any] struct {
	conn  C
	birth time.Time
}

// idleConn is a conn that is currently sitting unused in the pool, plus
// the instant it most recently became idle, used for idle_timeout expiry.
type idleConn[C any] struct {
	conn      conn[C]
	idleStart time.Time
}

// waiter is a parked checkout call. delivered is a buffered (cap 1)
// one-shot channel the returner sends into. claimed arbitrates between
// offer (the returner handing off a connection) and giveUp (the waiter
// abandoning the wait on timeout or caller cancellation): exactly one of
// them ever wins the compare-and-swap, so a cancelled waiter can never
// have a connection land in its buffer with nothing left to read it —
// that connection would otherwise be leaked from both idle and the
// checked-out count.
type waiter[C any] struct {
	delivered chan conn[C]
	claimed   *int32
}

func newWaiter[C any]() waiter[C] {
	var claimed int32
	return waiter[C]{
		delivered: make(chan conn[C], 1),
		claimed:   &claimed,
	}
}

// offer attempts to hand conn to this waiter. It returns true if the
// waiter accepted it, false if the waiter had already given up, in which
// case the caller must try the next waiter (or fall back to idle).
func (w waiter[C]) offer(c conn[C]) bool {
	if !atomic.CompareAndSwapInt32(w.claimed, 0, 1) {
		return false
	}
	w.delivered <- c
	return true
}

// giveUp claims this waiter for timeout/cancellation. It returns true if
// this call won the race against a concurrent offer — the caller is then
// responsible for reporting failure, since no connection will ever
// arrive. If it returns false, offer already won: a connection is
// guaranteed to be in (or imminently arriving in) delivered.
func (w waiter[C]) giveUp() bool {
	return atomic.CompareAndSwapInt32(w.claimed, 0, 1)
}

// internals is the pool's lock-protected shared state. Every field here
// must only be touched while the owning SharedPool's mutex is held.
type internals[C any] struct {
	idle         []idleConn[C]
	waiters      []waiter[C]
	numConns     uint32
	pendingConns uint32
}

// popIdleLocked removes and returns the oldest idle record, FIFO.
func (in *internals[C]) popIdleLocked() (idleConn[C], bool) {
	if len(in.idle) == 0 {
		return idleConn[C]{}, false
	}
	ic := in.idle[0]
	in.idle = in.idle[1:]
	return ic, true
}

// pushIdleLocked appends a new idle record to the back, FIFO.
func (in *internals[C]) pushIdleLocked(ic idleConn[C]) {
	in.idle = append(in.idle, ic)
}

// pushWaiterLocked parks a new waiter at the back of the queue.
func (in *internals[C]) pushWaiterLocked(w waiter[C]) {
	in.waiters = append(in.waiters, w)
}

// popWaiterLocked removes and returns the oldest waiter, FIFO.
func (in *internals[C]) popWaiterLocked() (waiter[C], bool) {
	if len(in.waiters) == 0 {
		return waiter[C]{}, false
	}
	w := in.waiters[0]
	in.waiters = in.waiters[1:]
	return w, true
}
