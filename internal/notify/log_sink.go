package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogSink writes notifications to the process log. Used when no bot token
// is configured.
type LogSink struct {
	logger log.FieldLogger
}

func NewLogSink(logger log.FieldLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, msg Message) error {
	s.logger.WithFields(log.Fields{
		"chat_id": msg.ChatID,
		"buttons": len(msg.Buttons),
	}).Info("📨 " + msg.Text)
	return nil
}
