package relay

import (
	"kanbansync/internal/notify"
	"kanbansync/internal/protocol"

	log "github.com/sirupsen/logrus"
)

// dispatch routes one inbound frame by envelope type.
func (h *Hub) dispatch(from *Client, raw []byte) {
	if !h.clients[from] {
		return
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		h.logger.WithError(err).WithField("client_id", from.id).Warn("⚠️  Dropping malformed frame")
		return
	}
	fields := log.Fields{"client_id": from.id, "type": env.Type}

	if env.Type.IsTaskChange() {
		h.notifyTaskChange(env)
		n := h.broadcast(raw, from)
		h.logger.WithFields(fields).WithField("peers", n).Debug("🔁 Task change relayed")
		return
	}

	switch env.Type {
	case protocol.TypeRequestStatus, protocol.TypeRequestColumnStatus:
		if env.CorrelationID == "" {
			env = env.WithCorrelation(protocol.NewCorrelationID())
		}
		// without a chat there is nobody to deliver the answer to
		if env.ChatID != 0 {
			h.pending.add(env.CorrelationID, pendingStatus{chatID: env.ChatID, kind: env.Type, createdAt: h.now()})
		}
		h.broadcastEnvelope(env, from)

	case protocol.TypeStatusResponse, protocol.TypeColumnStatusResponse:
		h.answerStatus(env, fields)

	case protocol.TypePing:
		h.logger.WithFields(fields).Trace("ping")

	case protocol.TypeRequestSync:
		env.Type = protocol.TypeSyncRequested
		h.broadcastEnvelope(env, from)
		h.logger.WithFields(fields).Debug("🔁 Sync requested")

	case protocol.TypeSyncData, protocol.TypeSyncConfirmed:
		n := h.broadcast(raw, from)
		h.logger.WithFields(fields).WithField("peers", n).Debug("🔁 Sync frame relayed")

	case protocol.TypeConnectionEstablished, protocol.TypeSyncRequested:
		h.logger.WithFields(fields).Debug("Ignoring server-to-client type from client")

	default:
		h.logger.WithFields(fields).Debug("Ignoring unknown message type")
	}
}

func (h *Hub) notifyTaskChange(env protocol.Envelope) {
	target := h.target.Load()
	if target == 0 {
		h.logger.Warn("❌ Cannot send notification: chat ID not set")
		return
	}
	var change protocol.TaskChange
	if err := env.DecodePayload(&change); err != nil {
		h.logger.WithError(err).Warn("⚠️  Task change without a readable payload")
		return
	}
	at := env.Timestamp
	if at.IsZero() {
		at = h.now()
	}
	text, ok := h.formatter.TaskChange(env.Type, change, at)
	if !ok {
		return
	}
	h.notify(notify.Message{ChatID: target, Text: text})
}

// answerStatus delivers the first readable response to a pending status
// request to the chat that asked. Responses are never shown to other board
// clients.
func (h *Hub) answerStatus(env protocol.Envelope, fields log.Fields) {
	var render func(chatID int64) notify.Message
	switch env.Type {
	case protocol.TypeStatusResponse:
		var status protocol.StatusResponse
		if err := env.DecodePayload(&status); err != nil {
			h.logger.WithError(err).WithFields(fields).Warn("⚠️  Invalid status response")
			return
		}
		render = func(chatID int64) notify.Message { return h.formatter.ColumnSelection(chatID, status) }

	case protocol.TypeColumnStatusResponse:
		var resp protocol.ColumnStatusResponse
		if err := env.DecodePayload(&resp); err != nil {
			h.logger.WithError(err).WithFields(fields).Warn("⚠️  Invalid column status response")
			return
		}
		render = func(chatID int64) notify.Message { return h.formatter.ColumnDetail(chatID, resp.Column) }

	default:
		return
	}

	req, ok := h.pending.resolve(env.CorrelationID, env.ChatID, env.Type, h.now())
	if !ok {
		h.logger.WithFields(fields).Debug("Dropping status response with no waiting request")
		return
	}
	h.notify(render(req.chatID))
	h.logger.WithFields(fields).WithField("chat_id", req.chatID).Info("📨 Status delivered")
}
