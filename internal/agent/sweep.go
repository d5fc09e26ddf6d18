package agent

// Sweep removes done tasks older than the retention window. Removals are
// local only; peers converge at the next full resync.
func (a *Agent) Sweep() int {
	a.mu.Lock()
	removed := a.board.SweepStale(a.clock.Now(), a.retention)
	if len(removed) > 0 {
		a.persistLocked(true)
	}
	a.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	a.logger.WithField("removed", len(removed)).Info("🧹 Removed stale done tasks")
	a.render()
	return len(removed)
}

func (a *Agent) scheduleSweep() {
	if a.sweepInterval <= 0 {
		return
	}
	t := a.clock.AfterFunc(a.sweepInterval, func() {
		a.Sweep()
		a.scheduleSweep()
	})
	a.mu.Lock()
	if a.stopped {
		t.Stop()
	} else {
		a.sweepTimer = t
	}
	a.mu.Unlock()
}
