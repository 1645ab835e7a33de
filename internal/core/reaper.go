package core

import "time"

// scheduleReaping spawns the periodic reaper task, but only when at
// least one expiry condition is configured — an unconfigured pool has
// nothing for the reaper to do.
func scheduleReaping[C any](sp *SharedPool[C]) {
	if !sp.conf.NeedsReaper() {
		return
	}

	sp.rt.Spawn(func() {
		ticker := sp.rt.Every(sp.conf.ReaperRate)
		defer ticker.Stop()

		for {
			select {
			case <-sp.Stopped():
				return
			case <-ticker.C():
				sp.reapOnce()
			}
		}
	})
}

// reapOnce prunes idle records past max_lifetime or idle_timeout and
// mints replenishing approvals for whatever it removed.
func (sp *SharedPool[C]) reapOnce() {
	now := time.Now()

	sp.mu.Lock()
	kept := sp.in.idle[:0]
	removed := 0
	for _, ic := range sp.in.idle {
		expiredIdle := sp.conf.HasIdleTimeout() && now.Sub(ic.idleStart) >= sp.conf.IdleTimeout
		expiredLife := sp.conf.HasMaxLifetime() && now.Sub(ic.conn.birth) >= sp.conf.MaxLifetime
		if expiredIdle || expiredLife {
			removed++
			continue
		}
		kept = append(kept, ic)
	}
	sp.in.idle = kept
	sp.in.numConns -= uint32(removed)

	n := wantedLocked(sp.conf, &sp.in)
	approvals := mintApprovalsLocked(sp.conf, &sp.in, n)
	sp.mu.Unlock()

	sp.dispatch(approvals)
}
