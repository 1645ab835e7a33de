// Command poolstat demonstrates a connpool.Pool against a chosen Manager,
// checking connections in and out on a timer while logging State snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nilsbauer/connpool/pkg/errsink"
	"github.com/nilsbauer/connpool/pkg/logger"
	"github.com/nilsbauer/connpool/pkg/manager"
	"github.com/nilsbauer/connpool/pkg/managers/redismgr"
	"github.com/nilsbauer/connpool/pkg/managers/wsmgr"
	"github.com/nilsbauer/connpool/pkg/poolconfig"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to pool YAML config file (optional)")
	managerKind := flag.String("manager", "memory", "Manager to exercise: memory, redis, websocket")
	addr := flag.String("addr", "localhost:6379", "Address for the redis/websocket manager")
	devMode := flag.Bool("dev", false, "Enable development (debug) logging")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("poolstat %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	level := logger.InfoLevel
	if *devMode {
		level = logger.DebugLevel
	}
	log := logger.NewDefaultLogger(level, "text")

	fileCfg := poolconfig.DefaultFileConfig()
	if *configFile != "" {
		loaded, err := poolconfig.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load pool config: %v\n", err)
			os.Exit(1)
		}
		fileCfg = loaded
	}

	sink := errsink.NewLoggingSink(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *managerKind {
	case "redis":
		runPool[*redismgr.Conn](ctx, log, redismgr.New(redismgr.Options{Addr: *addr}), fileCfg, sink)
	case "websocket":
		runPool[*wsmgr.Conn](ctx, log, wsmgr.New(wsmgr.Options{URL: "ws://" + *addr}), fileCfg, sink)
	default:
		runPool[int](ctx, log, &memoryManager{}, fileCfg, sink)
	}
}

func runPool[C comparable](ctx context.Context, log logger.Logger, m manager.Manager[C], fileCfg *poolconfig.FileConfig, sink errsink.ErrorSink) {
	builder := poolconfig.ToBuilder[C](fileCfg, m).ErrorSink(sink)
	pool := builder.Build()
	defer pool.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			checkoutCtx, cancel := context.WithTimeout(ctx, fileCfg.ConnectionTimeout.AsDuration())
			c, err := pool.Get(checkoutCtx)
			cancel()
			if err != nil {
				log.Warn("checkout failed", logger.Err(err))
				continue
			}

			time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
			pool.Put(c)

			st := pool.State()
			log.Info("pool state",
				logger.Int("connections", int(st.Connections)),
				logger.Int("idle_connections", int(st.IdleConnections)),
				logger.String("last_conn_id", st.LastConnID),
			)
		}
	}
}

// memoryManager is the zero-dependency default manager: it hands out
// in-process tokens so poolstat runs out of the box without Redis or a
// websocket endpoint on hand.
type memoryManager struct {
	n int
}

func (m *memoryManager) Connect(ctx context.Context) (int, error) {
	m.n++
	return m.n, nil
}

func (m *memoryManager) IsValid(ctx context.Context, c int) error { return nil }

func (m *memoryManager) HasBroken(c int) bool { return false }
