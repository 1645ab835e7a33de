// Package wsmgr implements manager.Manager for *Conn, a wrapped
// *websocket.Conn, pooling
// long-lived RPC-style websocket channels (signaling connections, the
// teacher's own transport for room/chat events) as homogeneous,
// interchangeable pool resources.
package wsmgr

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Options configures how each connection is dialed.
type Options struct {
	URL           string
	Header        http.Header
	HandshakeData []byte // optional application handshake frame sent after dial
}

var dialer = websocket.Dialer{
	HandshakeTimeout: 10 * time.Second,
}

// Conn marks itself broken the first time its read pump gets any read
// error, or the handshake write or an IsValid ping fails, since
// gorilla/websocket exposes no has_broken predicate of its own. Writes
// made by the application directly on the embedded connection do not
// mark it. pongWait is populated by IsValid and closed by the
// connection's own read pump, the only goroutine ever allowed to call
// ReadMessage on it (gorilla permits exactly one concurrent reader).
type Conn struct {
	*websocket.Conn
	broken int32

	pongMu   sync.Mutex
	pongWait chan struct{}
}

func (t *Conn) MarkBroken() { atomic.StoreInt32(&t.broken, 1) }

// pump installs the pong handler and drains frames for the life of the
// connection. IsValid never reads from the socket itself: gorilla's pong
// handler only runs while something is pumping reads, so a dedicated
// background reader is the only safe way to observe control frames
// without racing an application reader for the same connection.
func (t *Conn) pump() {
	t.SetPongHandler(func(string) error {
		t.pongMu.Lock()
		if t.pongWait != nil {
			close(t.pongWait)
			t.pongWait = nil
		}
		t.pongMu.Unlock()
		return nil
	})
	for {
		if _, _, err := t.ReadMessage(); err != nil {
			t.MarkBroken()
			return
		}
	}
}

// Manager dials and validates websocket connections against a single URL.
type Manager struct {
	opts Options
}

// New returns a Manager that dials opts.URL.
func New(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Connect dials the websocket endpoint and, if configured, sends an
// application handshake frame before handing the connection back.
func (m *Manager) Connect(ctx context.Context) (*Conn, error) {
	conn, _, err := dialer.DialContext(ctx, m.opts.URL, m.opts.Header)
	if err != nil {
		return nil, err
	}

	tc := &Conn{Conn: conn}

	if len(m.opts.HandshakeData) > 0 {
		if err := tc.WriteMessage(websocket.BinaryMessage, m.opts.HandshakeData); err != nil {
			tc.MarkBroken()
			_ = tc.Close()
			return nil, err
		}
	}

	go tc.pump()

	return tc, nil
}

// IsValid sends a ping control frame and waits for the connection's read
// pump to observe the matching pong, within ctx.
func (m *Manager) IsValid(ctx context.Context, c *Conn) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}

	c.pongMu.Lock()
	wait := make(chan struct{})
	c.pongWait = wait
	c.pongMu.Unlock()

	if err := c.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		c.MarkBroken()
		return err
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-wait:
		return nil
	case <-timer.C:
		c.MarkBroken()
		return context.DeadlineExceeded
	}
}

// HasBroken reports whether the connection has been marked broken (see
// Conn).
func (m *Manager) HasBroken(c *Conn) bool {
	return atomic.LoadInt32(&c.broken) != 0
}
