package agent

import (
	"kanbansync/internal/protocol"

	log "github.com/sirupsen/logrus"
)

// connect dials the relay once. Any connection from an earlier attempt is
// closed and its read loop becomes stale.
func (a *Agent) connect() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.gen++
	gen := a.gen
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	if a.attempt == 0 {
		a.state = StateConnecting
	}
	ctx := a.ctx
	attempt := a.attempt
	a.mu.Unlock()
	a.render()

	a.logger.WithFields(log.Fields{"url": a.url, "attempt": attempt}).Info("🔗 Connecting to relay")
	conn, err := a.dialer.Dial(ctx, a.url)

	a.mu.Lock()
	if gen != a.gen || a.stopped {
		a.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		a.mu.Unlock()
		a.fail(gen, err)
		return
	}
	a.conn = conn
	a.attempt = 0
	a.state = StateConnected
	a.mu.Unlock()

	a.logger.Info("✅ Connected to relay")
	go a.readLoop(gen, conn)
	a.onConnected()
	a.render()
}

func (a *Agent) onConnected() {
	a.emitNew(protocol.TypePing, nil)
	if a.role == protocol.ClientMiniApp {
		if err := a.requestSync(); err != nil {
			a.logger.WithError(err).Warn("⚠️  Initial sync request not sent")
		}
	}
}

func (a *Agent) readLoop(gen uint64, conn Conn) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			a.fail(gen, err)
			return
		}
		if !a.current(gen) {
			return
		}
		a.handleFrame(raw)
	}
}

func (a *Agent) current(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return gen == a.gen && !a.stopped
}

// fail moves the connection of generation gen to RECONNECTING, or to
// OFFLINE once the reconnect budget is spent.
func (a *Agent) fail(gen uint64, cause error) {
	a.mu.Lock()
	if gen != a.gen || a.stopped {
		a.mu.Unlock()
		return
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}

	if a.attempt >= a.maxAttempts {
		a.state = StateOffline
		a.mu.Unlock()
		a.logger.WithError(cause).WithField("attempts", a.maxAttempts).Error("❌ Max reconnection attempts reached, working offline")
		a.render()
		return
	}

	a.attempt++
	a.state = StateReconnecting
	attempt := a.attempt
	delay := a.backoff.Delay(attempt)
	a.mu.Unlock()

	a.logger.WithError(cause).WithFields(log.Fields{
		"attempt": attempt,
		"max":     a.maxAttempts,
		"delay":   delay,
	}).Warn("🔁 Connection lost, scheduling reconnect")
	a.render()

	t := a.clock.AfterFunc(delay, func() { a.reconnectTick(gen) })
	a.mu.Lock()
	if a.gen == gen && a.state == StateReconnecting && !a.stopped {
		a.reconnect = t
	} else {
		t.Stop()
	}
	a.mu.Unlock()
}

func (a *Agent) reconnectTick(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.state != StateReconnecting || a.stopped {
		a.mu.Unlock()
		return
	}
	a.reconnect = nil
	a.mu.Unlock()
	a.connect()
}

// requestSync asks peers for a full snapshot.
func (a *Agent) requestSync() error {
	env, err := protocol.New(protocol.TypeRequestSync, nil, a.clock.Now())
	if err != nil {
		return err
	}
	return a.sendTracked(env.WithCorrelation(protocol.NewCorrelationID()))
}

// pushSnapshot sends the local board as a correlated SYNC_DATA and waits
// for a peer to confirm it.
func (a *Agent) pushSnapshot() error {
	env, err := protocol.New(protocol.TypeSyncData, protocol.SyncDataFrom(a.Board()), a.clock.Now())
	if err != nil {
		return err
	}
	return a.sendTracked(env.WithCorrelation(protocol.NewCorrelationID()))
}

func (a *Agent) sendTracked(env protocol.Envelope) error {
	if a.Status().State != StateConnected {
		return ErrNotConnected
	}
	a.addPending(env.CorrelationID)
	if err := a.send(env); err != nil {
		a.resolvePending(env.CorrelationID)
		return err
	}
	a.logger.WithFields(log.Fields{"type": env.Type, "correlation_id": env.CorrelationID}).Info("📤 Sync started")
	return nil
}

func (a *Agent) addPending(corr string) {
	t := a.clock.AfterFunc(a.syncTimeout, func() { a.expirePending(corr) })
	a.mu.Lock()
	a.pending[corr] = t
	a.mu.Unlock()
	a.render()
}

// resolvePending clears a pending sync; it reports whether one was waiting.
func (a *Agent) resolvePending(corr string) bool {
	if corr == "" {
		return false
	}
	a.mu.Lock()
	t, ok := a.pending[corr]
	if ok {
		t.Stop()
		delete(a.pending, corr)
	}
	a.mu.Unlock()
	if ok {
		a.render()
	}
	return ok
}

func (a *Agent) expirePending(corr string) {
	a.mu.Lock()
	_, ok := a.pending[corr]
	delete(a.pending, corr)
	a.mu.Unlock()
	if !ok {
		return
	}
	a.logger.WithField("correlation_id", corr).Warn("⏱️  Sync timed out")
	a.render()
}
