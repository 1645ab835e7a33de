package connpool

import (
	"time"

	"github.com/nilsbauer/connpool/internal/core"
	"github.com/nilsbauer/connpool/pkg/errsink"
	"github.com/nilsbauer/connpool/pkg/manager"
	"github.com/nilsbauer/connpool/pkg/poolrt"
)

// Config is the pool's immutable configuration, matching the fields
// spec.md recognizes. Runtime and ErrorSink default to poolrt.GoRuntime
// and errsink.NopSink when left nil.
type Config struct {
	MaxSize           uint32
	MinIdle           uint32
	MaxLifetime       time.Duration
	IdleTimeout       time.Duration
	ConnectionTimeout time.Duration
	ReaperRate        time.Duration
	TestOnCheckOut    bool

	ErrorSink errsink.ErrorSink
	Runtime   poolrt.Runtime
}

func (c Config) toCore() core.Config {
	return core.Config{
		MaxSize:           c.MaxSize,
		MinIdle:           c.MinIdle,
		MaxLifetime:       c.MaxLifetime,
		IdleTimeout:       c.IdleTimeout,
		ConnectionTimeout: c.ConnectionTimeout,
		ReaperRate:        c.ReaperRate,
		TestOnCheckOut:    c.TestOnCheckOut,
	}
}

// DefaultConfig returns defaults for every field: MaxSize 10,
// ConnectionTimeout and ReaperRate 30s, everything else unset. A Config
// built by hand instead must set MaxSize and ConnectionTimeout: their
// zero values are not valid.
func DefaultConfig() Config {
	return Config{
		MaxSize:           10,
		MinIdle:           0,
		ConnectionTimeout: 30 * time.Second,
		ReaperRate:        30 * time.Second,
	}
}

// Builder fluently constructs a Config, mirroring the teacher's
// config.Config/DefaultConfig pattern and bb8's own Builder.
type Builder[C comparable] struct {
	cfg Config
	mgr manager.Manager[C]
}

// NewBuilder starts a Builder from DefaultConfig for the given Manager.
func NewBuilder[C comparable](m manager.Manager[C]) *Builder[C] {
	return &Builder[C]{cfg: DefaultConfig(), mgr: m}
}

// MaxSize sets the hard upper bound on num_conns + pending_conns.
func (b *Builder[C]) MaxSize(n uint32) *Builder[C] { b.cfg.MaxSize = n; return b }

// MinIdle sets the target minimum of idle.len() + pending_conns.
func (b *Builder[C]) MinIdle(n uint32) *Builder[C] { b.cfg.MinIdle = n; return b }

// MaxLifetime sets the maximum wall-clock age of a connection.
func (b *Builder[C]) MaxLifetime(d time.Duration) *Builder[C] { b.cfg.MaxLifetime = d; return b }

// IdleTimeout sets the maximum time a connection may sit idle.
func (b *Builder[C]) IdleTimeout(d time.Duration) *Builder[C] { b.cfg.IdleTimeout = d; return b }

// ConnectionTimeout sets the caller-visible checkout budget.
func (b *Builder[C]) ConnectionTimeout(d time.Duration) *Builder[C] {
	b.cfg.ConnectionTimeout = d
	return b
}

// ReaperRate sets the reaper task's period.
func (b *Builder[C]) ReaperRate(d time.Duration) *Builder[C] { b.cfg.ReaperRate = d; return b }

// TestOnCheckOut enables Manager validation of connections popped from idle.
func (b *Builder[C]) TestOnCheckOut(v bool) *Builder[C] { b.cfg.TestOnCheckOut = v; return b }

// ErrorSink sets the non-blocking background error reporting hook.
func (b *Builder[C]) ErrorSink(s errsink.ErrorSink) *Builder[C] { b.cfg.ErrorSink = s; return b }

// Runtime overrides the async runtime capability (Spawn/Sleep/Every).
func (b *Builder[C]) Runtime(rt poolrt.Runtime) *Builder[C] { b.cfg.Runtime = rt; return b }

// Build constructs the Pool.
func (b *Builder[C]) Build() *Pool[C] {
	return New[C](b.cfg, b.mgr)
}
