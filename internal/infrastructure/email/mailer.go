package email

import (
	"context"

	"github.com/rs/zerolog"
)

// LogMailer is a development mailer that writes outbound mail to the log
// instead of delivering it. Production deployments swap in a real provider
// behind the same port.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, email, resetToken string) error {
	m.log.Info().
		Str("to", email).
		Str("reset_token", resetToken).
		Msg("password reset email")
	return nil
}
