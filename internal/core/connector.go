package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nilsbauer/connpool/pkg/manager"
)

const (
	minBackoff = 200 * time.Millisecond
)

// addConnection fulfills a single approval: it retries Manager.Connect
// under exponential backoff until it succeeds or the connection_timeout
// budget is exhausted, checking for pool teardown at every checkpoint.
func addConnection[C any](sp *SharedPool[C]) {
	select {
	case <-sp.Stopped():
		sp.giveUp(nil)
		return
	default:
	}

	start := time.Now()
	var delay time.Duration

	for {
		ctx, cancel := context.WithTimeout(context.Background(), sp.conf.ConnectionTimeout)
		c, err := sp.manager.Connect(ctx)
		cancel()

		if err == nil {
			id := uuid.New()
			sp.recordConnID(id)

			birth := time.Now()
			sp.mu.Lock()
			sp.in.pendingConns--
			sp.in.numConns++
			sp.mu.Unlock()

			sp.Return(c, birth)
			return
		}

		wrapped := manager.Wrap("connect", err)

		if time.Since(start) > sp.conf.ConnectionTimeout {
			sp.giveUp(wrapped)
			return
		}

		delay = minDuration(sp.conf.ConnectionTimeout/2, maxDuration(minBackoff, delay*2))

		sp.rt.Sleep(stopContext{stopped: sp.Stopped()}, delay)
		select {
		case <-sp.Stopped():
			sp.giveUp(wrapped)
			return
		default:
		}
	}
}

// giveUp decrements pending_conns for an approval that will never
// resolve into a connection and, if there's an error to report, routes
// it to the error sink.
func (sp *SharedPool[C]) giveUp(err error) {
	sp.mu.Lock()
	sp.in.pendingConns--
	sp.mu.Unlock()

	if err == nil {
		return
	}
	sp.recordErr(err)
	if sp.sink != nil {
		sp.sink.Sink(err)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
