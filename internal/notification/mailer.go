// internal/notification/mailer.go
package notification

import (
	"context"

	"go.uber.org/zap"

	"librarium/internal/logging"
)

// LogMailer writes emails to the log instead of delivering them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that logs every message at info level.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logging.OrNop(logger).Named("mailer")}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
