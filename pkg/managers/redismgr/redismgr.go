// Package redismgr implements manager.Manager for *Conn, a wrapped
// *redis.Client, letting
// the pool core own admission and reaping of Redis connections instead
// of go-redis's own internal pool — useful for workloads (e.g. per-tenant
// Redis ACL users) that need hard isolation per checked-out connection.
package redismgr

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Options configures how each physical *redis.Client is dialed.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// Manager opens *redis.Client connections pinned to PoolSize 1, so each
// one is a single dedicated TCP connection the pool core tracks.
type Manager struct {
	opts Options
}

// New returns a Manager that dials addr with the given options.
func New(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Conn wraps the client returned to the pool with a broken flag
// set by a wrapping hook whenever a command comes back with an error
// (see brokenHook), since go-redis itself exposes no has_broken
// predicate.
type Conn struct {
	*redis.Client
	broken int32
}

func (t *Conn) MarkBroken() { atomic.StoreInt32(&t.broken, 1) }

// Connect dials a new Redis connection and verifies it with a PING.
func (m *Manager) Connect(ctx context.Context) (*Conn, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     m.opts.Addr,
		Username: m.opts.Username,
		Password: m.opts.Password,
		DB:       m.opts.DB,
		PoolSize: 1,
	})

	tc := &Conn{Client: client}
	tc.AddHook(brokenHook{tc: tc})

	if err := tc.Ping(ctx).Err(); err != nil {
		_ = tc.Close()
		return nil, err
	}
	return tc, nil
}

// IsValid pings the connection.
func (m *Manager) IsValid(ctx context.Context, c *Conn) error {
	return c.Ping(ctx).Err()
}

// HasBroken reports whether a command on this connection has already
// surfaced a connection-level failure.
func (m *Manager) HasBroken(c *Conn) bool {
	return atomic.LoadInt32(&c.broken) != 0
}

// brokenHook is a go-redis hook that marks the owning Conn broken
// whenever a single command returns any error other than redis.Nil, and
// whenever a pipeline returns any error at all. Server error replies are
// not told apart from network failures.
type brokenHook struct {
	tc *Conn
}

func (h brokenHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h brokenHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && err != redis.Nil {
			h.tc.MarkBroken()
		}
		return err
	}
}

func (h brokenHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil {
			h.tc.MarkBroken()
		}
		return err
	}
}
