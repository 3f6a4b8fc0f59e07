package service

import (
	"context"
	"log/slog"
)

// Mailer delivers one-time secrets to users. Sends are fire-and-forget from
// the auth service's point of view; delivery failures are logged, never
// retried here.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// SlogMailer stands in for a real delivery backend in dev and test. It logs
// that a send happened without ever logging the secret itself.
type SlogMailer struct {
	logger *slog.Logger
}

func NewSlogMailer(logger *slog.Logger) *SlogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogMailer{logger: logger}
}

func (m *SlogMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.logger.InfoContext(ctx, "verification email queued", "email", email, "token_length", len(token))
	return nil
}

func (m *SlogMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.logger.InfoContext(ctx, "password reset email queued", "email", email, "token_length", len(token))
	return nil
}
