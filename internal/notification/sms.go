package notification

import (
	"context"
	"log/slog"
)

// LogSMSSender logs messages instead of delivering them. It stands in for
// a real SMS gateway until one is wired up; the seam (auth.SMSSender) is
// what matters, not the vendor.
type LogSMSSender struct {
	logger *slog.Logger
}

// NewLogSMSSender creates a logging SMS sender.
func NewLogSMSSender(logger *slog.Logger) *LogSMSSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSMSSender{logger: logger}
}

// Send logs the message.
func (s *LogSMSSender) Send(_ context.Context, phoneNumber, message string) error {
	s.logger.Info("sms delivery (log only)",
		"phone_number", phoneNumber,
		"message", message,
	)
	return nil
}
