package email

import (
	"context"
	"log/slog"
)

// LogSender writes mail to the log instead of delivering it. It is used when
// no SMTP relay is configured, so OTP codes are visible in local runs.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if s.logger == nil {
		return nil
	}
	s.logger.InfoContext(ctx, "mail not delivered (no smtp relay configured)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
