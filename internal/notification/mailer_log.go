package notification

import (
	"context"
	"log/slog"
)

// LogMailer logs mail instead of delivering it, for development setups
// without SMTP. Tokens and codes land in the log, so never use it in
// production.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a logging mailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendVerification logs the verification token.
func (m *LogMailer) SendVerification(_ context.Context, to, token string) error {
	m.logger.Info("verification email (log only)", "to", to, "token", token)
	return nil
}

// SendPasswordReset logs the reset token.
func (m *LogMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.logger.Info("password reset email (log only)", "to", to, "token", token)
	return nil
}

// SendMFACode logs the code.
func (m *LogMailer) SendMFACode(_ context.Context, to, code string) error {
	m.logger.Info("mfa code email (log only)", "to", to, "code", code)
	return nil
}
