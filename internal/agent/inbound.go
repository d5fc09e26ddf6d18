package agent

import (
	"errors"

	"kanbansync/internal/model"
	"kanbansync/internal/protocol"

	log "github.com/sirupsen/logrus"
)

func (a *Agent) handleFrame(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		a.handleLegacy(raw, err)
		return
	}
	fields := log.Fields{"type": env.Type, "correlation_id": env.CorrelationID}
	a.logger.WithFields(fields).Debug("📨 Received")

	if env.Type.IsTaskChange() {
		if a.applyPeer {
			a.applyTaskChange(env)
		}
		return
	}

	switch env.Type {
	case protocol.TypeConnectionEstablished:
		var info protocol.ConnectionEstablished
		if err := env.DecodePayload(&info); err != nil {
			a.logger.WithError(err).Warn("⚠️  Unreadable connection greeting")
			return
		}
		a.mu.Lock()
		a.clientID = info.ClientID
		a.assigned = info.ClientType
		a.mu.Unlock()
		a.logger.WithField("client_id", info.ClientID).Info("✅ Connection confirmed by relay")
		a.render()

	case protocol.TypeSyncData:
		a.applySnapshot(env)

	case protocol.TypeSyncConfirmed:
		if a.resolvePending(env.CorrelationID) {
			a.logger.WithFields(fields).Info("✅ Sync confirmed")
		}

	case protocol.TypeSyncRequested, protocol.TypeRequestSync:
		if a.authoritative {
			a.answerSync(env.CorrelationID)
		}

	case protocol.TypeRequestStatus:
		a.answerStatus(env.ChatID, env.CorrelationID)

	case protocol.TypeRequestColumnStatus:
		var req protocol.ColumnStatusRequest
		if err := env.DecodePayload(&req); err != nil {
			// older bots put columnStatus next to type
			if legacy, lerr := protocol.PeekLegacy(raw); lerr == nil {
				req.ColumnStatus = legacy.ColumnStatus
			}
		}
		a.answerColumnStatus(env.ChatID, env.CorrelationID, req.ColumnStatus)

	case protocol.TypePing, protocol.TypeStatusResponse, protocol.TypeColumnStatusResponse:
		// not addressed to board clients

	default:
		a.logger.WithFields(fields).Debug("Ignoring unknown message type")
	}
}

// handleLegacy answers flat status requests from older relay builds.
func (a *Agent) handleLegacy(raw []byte, cause error) {
	msg, err := protocol.PeekLegacy(raw)
	if err != nil {
		a.logger.WithError(cause).Warn("⚠️  Dropping malformed frame")
		return
	}
	switch msg.Type {
	case protocol.TypeRequestStatus:
		a.answerStatus(msg.ChatID, "")
	case protocol.TypeRequestColumnStatus:
		a.answerColumnStatus(msg.ChatID, "", msg.ColumnStatus)
	default:
		a.logger.WithError(cause).WithField("type", msg.Type).Debug("Ignoring undecodable frame")
	}
}

// applySnapshot overwrites the local board with a peer snapshot and
// confirms correlated snapshots once.
func (a *Agent) applySnapshot(env protocol.Envelope) {
	var data protocol.SyncData
	if err := env.DecodePayload(&data); err != nil || !data.Complete() {
		a.logger.WithError(err).Warn("⚠️  Ignoring incomplete sync data")
		return
	}

	a.mu.Lock()
	labels := a.board.Labels
	a.board = data.Board().Clone()
	if data.Labels == nil {
		a.board.Labels = labels
	}
	a.persistLocked(true)
	confirm := false
	if env.CorrelationID != "" && !a.confirmed[env.CorrelationID] {
		a.rememberConfirmedLocked(env.CorrelationID)
		confirm = true
	}
	a.mu.Unlock()

	a.logger.WithFields(log.Fields{"tasks": len(data.Tasks), "columns": len(data.Columns)}).Info("🔄 Board replaced from peer snapshot")
	a.resolvePending(env.CorrelationID)
	if confirm {
		if ack, err := protocol.New(protocol.TypeSyncConfirmed, nil, a.clock.Now()); err == nil {
			a.emit(ack.WithCorrelation(env.CorrelationID))
		}
	}
	a.render()
}

func (a *Agent) rememberConfirmedLocked(corr string) {
	a.confirmed[corr] = true
	a.confirmLog = append(a.confirmLog, corr)
	if len(a.confirmLog) > confirmedMemory {
		delete(a.confirmed, a.confirmLog[0])
		a.confirmLog = a.confirmLog[1:]
	}
}

func (a *Agent) answerSync(corr string) {
	env, err := protocol.New(protocol.TypeSyncData, protocol.SyncDataFrom(a.Board()), a.clock.Now())
	if err != nil {
		a.logger.WithError(err).Error("❌ Failed to build snapshot")
		return
	}
	a.emit(env.WithCorrelation(corr))
	a.logger.WithField("correlation_id", corr).Info("📤 Snapshot sent to peer")
}

// applyTaskChange mirrors a peer's task event. Creation is idempotent and
// changes to a task this replica does not have are no-ops.
func (a *Agent) applyTaskChange(env protocol.Envelope) {
	var change protocol.TaskChange
	if err := env.DecodePayload(&change); err != nil {
		a.logger.WithError(err).Warn("⚠️  Unreadable task change")
		return
	}

	a.mu.Lock()
	changed := false
	switch env.Type {
	case protocol.TypeTaskCreated:
		if change.Task != nil {
			changed = a.board.AddTask(*change.Task)
		}
	case protocol.TypeTaskUpdated:
		if change.Task != nil {
			err := a.board.ReplaceTask(*change.Task)
			changed = err == nil
			if err != nil && !errors.Is(err, model.ErrTaskNotFound) {
				a.logger.WithError(err).WithField("task_id", change.TaskID).Warn("⚠️  Rejected task update")
			}
		}
	case protocol.TypeTaskDeleted:
		changed = len(a.board.DeleteTask(change.TaskID)) > 0
	case protocol.TypeTaskMoved:
		if change.ToStatus != "" {
			_, err := a.board.MoveTask(change.TaskID, change.ToStatus, change.ParentID, a.clock.Now())
			changed = err == nil
		}
	}
	if changed {
		a.persistLocked(false)
	}
	a.mu.Unlock()

	if changed {
		a.logger.WithFields(log.Fields{"type": env.Type, "task_id": change.TaskID}).Debug("🔄 Applied peer change")
		a.render()
	}
}

func (a *Agent) answerStatus(chatID int64, corr string) {
	a.mu.Lock()
	status := protocol.BuildStatus(&a.board)
	a.mu.Unlock()

	env, err := protocol.New(protocol.TypeStatusResponse, status, a.clock.Now())
	if err != nil {
		return
	}
	a.emit(env.WithChat(chatID).WithCorrelation(corr))
}

func (a *Agent) answerColumnStatus(chatID int64, corr, columnStatus string) {
	a.mu.Lock()
	resp, ok := protocol.BuildColumnStatus(&a.board, columnStatus)
	a.mu.Unlock()
	if !ok {
		a.logger.WithField("column", columnStatus).Debug("Status requested for unknown column")
		return
	}

	env, err := protocol.New(protocol.TypeColumnStatusResponse, resp, a.clock.Now())
	if err != nil {
		return
	}
	a.emit(env.WithChat(chatID).WithCorrelation(corr))
}
