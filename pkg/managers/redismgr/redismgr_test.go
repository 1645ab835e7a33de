package redismgr

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestHasBrokenReflectsMarkBroken(t *testing.T) {
	tc := &Conn{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", PoolSize: 1})}
	defer tc.Close()

	m := &Manager{}
	if m.HasBroken(tc) {
		t.Fatal("expected fresh connection to be healthy")
	}

	tc.MarkBroken()
	if !m.HasBroken(tc) {
		t.Fatal("expected HasBroken to report true after MarkBroken")
	}
}

func TestNewOptionsCarried(t *testing.T) {
	opts := Options{Addr: "localhost:6379", DB: 2}
	m := New(opts)
	if m.opts.Addr != "localhost:6379" || m.opts.DB != 2 {
		t.Fatalf("options not carried through: %+v", m.opts)
	}
}
