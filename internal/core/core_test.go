package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nilsbauer/connpool/pkg/errsink"
	"github.com/nilsbauer/connpool/pkg/poolrt"
)

// fakeManager mints int connections; each call to Connect increments a
// counter so tests can tell connections apart.
type fakeManager struct {
	next    int64
	failN   int32 // number of Connect calls to fail before succeeding
	broken  map[int]bool
	mu      sync.Mutex
	delay   time.Duration
	invalid map[int]int // remaining IsValid rejections per connection
}

func newFakeManager() *fakeManager {
	return &fakeManager{broken: map[int]bool{}, invalid: map[int]int{}}
}

func (m *fakeManager) Connect(ctx context.Context) (int, error) {
	if atomic.AddInt32(&m.failN, -1) >= 0 {
		return 0, errConnectFailed{}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return int(atomic.AddInt64(&m.next, 1)), nil
}

func (m *fakeManager) IsValid(ctx context.Context, c int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.invalid[c]; n > 0 {
		m.invalid[c] = n - 1
		return errInvalid{}
	}
	return nil
}

func (m *fakeManager) HasBroken(c int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broken[c]
}

type errConnectFailed struct{}

func (errConnectFailed) Error() string { return "connect failed" }

type errInvalid struct{}

func (errInvalid) Error() string { return "invalid" }

func testConfig() Config {
	return Config{
		MaxSize:           2,
		ConnectionTimeout: 200 * time.Millisecond,
		ReaperRate:        20 * time.Millisecond,
	}
}

func newTestPool(t *testing.T, cfg Config, m *fakeManager) *SharedPool[int] {
	t.Helper()
	sp := New[int](cfg, m, poolrt.GoRuntime{}, errsink.NopSink{})
	t.Cleanup(sp.Close)
	return sp
}

// Invariant 1: num_conns + pending_conns <= max_size.
func TestInvariantAdmissionCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 3
	m := newFakeManager()
	sp := newTestPool(t, cfg, m)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
			defer cancel()
			c, err := sp.Checkout(ctx)
			if err == nil {
				sp.Return(c, time.Now())
			}
		}()
	}
	wg.Wait()

	sp.mu.Lock()
	total := sp.in.numConns + sp.in.pendingConns
	sp.mu.Unlock()
	if total > cfg.MaxSize {
		t.Fatalf("num_conns+pending_conns = %d exceeds max_size %d", total, cfg.MaxSize)
	}
}

// Invariant 2: idle.len() <= num_conns.
func TestInvariantIdleWithinNumConns(t *testing.T) {
	cfg := testConfig()
	m := newFakeManager()
	sp := newTestPool(t, cfg, m)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	c, err := sp.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	sp.Return(c, time.Now())

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if uint32(len(sp.in.idle)) > sp.in.numConns {
		t.Fatalf("idle.len() = %d exceeds num_conns %d", len(sp.in.idle), sp.in.numConns)
	}
}

// Invariant 7: checkout immediately followed by a healthy return leaves
// counters unchanged.
func TestRoundTripLeavesCountersUnchanged(t *testing.T) {
	cfg := testConfig()
	m := newFakeManager()
	sp := newTestPool(t, cfg, m)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	c, err := sp.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	sp.mu.Lock()
	before := sp.in.numConns
	sp.mu.Unlock()

	sp.Return(c, time.Now())

	sp.mu.Lock()
	after := sp.in.numConns
	sp.mu.Unlock()

	if before != after {
		t.Fatalf("num_conns changed across round trip: %d -> %d", before, after)
	}
}

// Invariant 6: two reaper ticks with no intervening activity and no
// expirations produce no state change.
func TestReapIdempotentWhenNothingExpired(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = time.Hour
	m := newFakeManager()
	sp := newTestPool(t, cfg, m)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	c, err := sp.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	sp.Return(c, time.Now())

	sp.reapOnce()
	sp.mu.Lock()
	idleLen1, numConns1 := len(sp.in.idle), sp.in.numConns
	sp.mu.Unlock()

	sp.reapOnce()
	sp.mu.Lock()
	idleLen2, numConns2 := len(sp.in.idle), sp.in.numConns
	sp.mu.Unlock()

	if idleLen1 != idleLen2 || numConns1 != numConns2 {
		t.Fatalf("reap was not idempotent: (%d,%d) -> (%d,%d)", idleLen1, numConns1, idleLen2, numConns2)
	}
}

// Invariant 3 (partial, single-connection case): a checked-out
// connection is not simultaneously idle.
func TestCheckedOutConnectionNotIdle(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 1
	m := newFakeManager()
	sp := newTestPool(t, cfg, m)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	_, err := sp.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	sp.mu.Lock()
	idleLen := len(sp.in.idle)
	sp.mu.Unlock()
	if idleLen != 0 {
		t.Fatalf("expected 0 idle while connection is checked out, got %d", idleLen)
	}
}

// S2-style: give-up path returns pending_conns to zero.
func TestGiveUpRestoresPendingConns(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 2
	cfg.ConnectionTimeout = 80 * time.Millisecond
	m := newFakeManager()
	atomic.StoreInt32(&m.failN, 1<<20) // always fail
	sp := newTestPool(t, cfg, m)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := sp.Checkout(ctx)
	if err == nil {
		t.Fatal("expected timeout error")
	}

	// Give the connector goroutine a moment to observe the give-up.
	time.Sleep(150 * time.Millisecond)

	sp.mu.Lock()
	pending := sp.in.pendingConns
	sp.mu.Unlock()
	if pending != 0 {
		t.Fatalf("expected pending_conns == 0 after give-up, got %d", pending)
	}
}

// TestWaiterOfferGiveUpMutuallyExclusive hammers the exact race a
// cancelled checkout and a concurrent hand-off used to lose: offer and
// giveUp must never both "win", or a connection ends up sent into a
// buffer nothing will ever read (leaked from idle, numConns never
// decremented).
func TestWaiterOfferGiveUpMutuallyExclusive(t *testing.T) {
	for i := 0; i < 2000; i++ {
		w := newWaiter[int]()

		var offered, gaveUp bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			offered = w.offer(conn[int]{conn: 1})
		}()
		go func() {
			defer wg.Done()
			gaveUp = w.giveUp()
		}()
		wg.Wait()

		if offered == gaveUp {
			t.Fatalf("iteration %d: offer()=%v giveUp()=%v, exactly one must win", i, offered, gaveUp)
		}

		if offered {
			select {
			case <-w.delivered:
			default:
				t.Fatalf("iteration %d: offer won but delivered is empty", i)
			}
		} else {
			select {
			case <-w.delivered:
				t.Fatalf("iteration %d: giveUp won but a connection was still delivered (leaked)", i)
			default:
			}
		}
	}
}

// TestReturnPreservesBirthAcrossRoundTrip checks that a connection handed
// back through Return keeps the birth it was checked out with, instead
// of being re-stamped to the moment of return — otherwise max_lifetime
// never expires an actively-used connection.
func TestReturnPreservesBirthAcrossRoundTrip(t *testing.T) {
	cfg := testConfig()
	m := newFakeManager()
	sp := newTestPool(t, cfg, m)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	c, birth, err := sp.CheckoutWithBirth(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if birth.IsZero() {
		t.Fatal("expected non-zero birth from CheckoutWithBirth")
	}

	time.Sleep(5 * time.Millisecond)
	sp.Return(c, birth)

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.in.idle) != 1 {
		t.Fatalf("expected 1 idle record, got %d", len(sp.in.idle))
	}
	if !sp.in.idle[0].conn.birth.Equal(birth) {
		t.Fatalf("birth not preserved across round trip: got %v, want %v", sp.in.idle[0].conn.birth, birth)
	}
}
